package newsletter

type Database interface {
	Open() error
	Close() error
}
