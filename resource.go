package boundres

// Status is the state of an asynchronous load.
type Status int

const (
	// StatusLoading means the load is in flight. Data may hold a stale cached value.
	StatusLoading Status = iota
	// StatusSuccess means the load finished and Data is the cached value.
	StatusSuccess
	// StatusError means the fetch failed. Data holds the last cached value, if any.
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Resource is a tagged load state together with the data available at that moment.
type Resource[T any] struct {
	Status  Status
	Data    *T
	Message string
}

// Loading returns a Resource in the loading state.
func Loading[T any](data *T) Resource[T] {
	return Resource[T]{Status: StatusLoading, Data: data}
}

// Success returns a Resource in the success state.
func Success[T any](data *T) Resource[T] {
	return Resource[T]{Status: StatusSuccess, Data: data}
}

// Error returns a Resource in the error state.
func Error[T any](message string, data *T) Resource[T] {
	return Resource[T]{Status: StatusError, Data: data, Message: message}
}

// IsTerminal reports whether the resource finished loading, successfully or not.
func (r Resource[T]) IsTerminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusError
}
