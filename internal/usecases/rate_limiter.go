package usecases

import "context"

// RateLimiter — ограничитель нагрузки на семафоре.
// Не дает запустить больше N обращений к бэкенду одновременно.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter создает ограничитель с буфером на maxConcurrent запросов.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire пытается получить разрешение на работу.
// Если лимит исчерпан — ждет, пока место не освободится.
// Если контекст отменен — возвращает ошибку.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release освобождает место для следующих запросов.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
	}
}

// InFlight возвращает число занятых слотов.
func (rl *RateLimiter) InFlight() int {
	return len(rl.semaphore)
}
