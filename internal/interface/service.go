package interfaces

// Service is the outer surface of the daemon, started and stopped by cmd/marketd.
type Service interface {
	Start() error
	Stop()
}
