package domain

import "context"

// Task is one unit of work for an ordered processor
type Task func(ctx context.Context) (interface{}, error)

// TaskResult is the outcome of the task at Index
type TaskResult struct {
	Index int
	Value interface{}
	Err   error
}

// Processor runs tasks concurrently and reports results in input order
type Processor interface {
	Process(ctx context.Context, tasks []Task) ([]TaskResult, error)
}
