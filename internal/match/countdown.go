package match

import (
	"fmt"
	"sync"
	"time"
)

const tickInterval = 500 * time.Millisecond

// Countdown — локальный таймер обратного отсчёта от общего дедлайна.
// Каждый клиент ведёт свой независимо; синхронизации между ними нет,
// кроме самого значения deadline из документа матча. По достижении нуля
// ровно один раз вызывается onExpire (обычно — Finalize).
type Countdown struct {
	deadline time.Time
	onExpire func()

	mu      sync.Mutex
	ticks   chan string
	stop    chan struct{}
	stopped bool
	expired bool
}

func NewCountdown(deadlineMillis int64, onExpire func()) *Countdown {
	return &Countdown{
		deadline: time.UnixMilli(deadlineMillis),
		onExpire: onExpire,
		ticks:    make(chan string, 1),
		stop:     make(chan struct{}),
	}
}

// Ticks отдаёт отформатированные значения mm:ss для отрисовки
func (c *Countdown) Ticks() <-chan string {
	return c.ticks
}

// Start запускает тикер; зовётся ровно один раз. Канал тиков закрывается
// по истечении или после Stop.
func (c *Countdown) Start() {
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		defer close(c.ticks)

		c.tick() // немедленный первый тик, как в браузерном таймере
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if c.tick() {
					return
				}
			}
		}
	}()
}

// Stop отменяет отсчёт (победитель объявлен, процесс завершается)
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
}

// tick пересчитывает остаток и возвращает true по истечении
func (c *Countdown) tick() bool {
	left := time.Until(c.deadline)
	if left < 0 {
		left = 0
	}

	select {
	case c.ticks <- FormatRemaining(left):
	default:
		// отрисовщик не успевает — пропускаем тик
	}

	if left > 0 {
		return false
	}

	c.mu.Lock()
	fire := !c.expired && !c.stopped
	c.expired = true
	c.mu.Unlock()

	if fire && c.onExpire != nil {
		c.onExpire()
	}
	return true
}

// FormatRemaining форматирует остаток как mm:ss
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
