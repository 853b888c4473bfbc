package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore — реализация Store в памяти процесса с той же семантикой,
// что и RedisStore: транзакции сериализуются по пути, подписчики получают
// полное значение после каждого коммита. Используется в тестах и в
// однопроцессной демке (оба игрока в одном процессе).
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	subs map[string][]chan []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[string][]chan []byte),
	}
}

func (s *MemoryStore) Read(ctx context.Context, path string, v any) error {
	s.mu.Lock()
	raw, ok := s.docs[path]
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

// Transact держит мьютекс на весь read-modify-write: конфликтов не бывает,
// конкурентные транзакции просто выполняются по очереди над свежим значением.
// Это и есть гарантия linearizable-обновлений из контракта Store.
func (s *MemoryStore) Transact(ctx context.Context, path string, fn TxFunc) error {
	s.mu.Lock()

	old := s.docs[path]
	next, err := fn(old)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if next == nil || bytes.Equal(old, next) {
		s.mu.Unlock()
		return nil
	}

	s.docs[path] = next
	// доставка под мьютексом, чтобы не послать в уже закрытый канал
	// отписавшегося подписчика
	for _, ch := range s.subs[path] {
		select {
		case ch <- next:
		default:
			// медленный подписчик теряет промежуточный снапшот,
			// следующий коммит принесёт актуальное значение
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan []byte, error) {
	ch := make(chan []byte, subscribeBuffer)

	s.mu.Lock()
	if raw, ok := s.docs[path]; ok {
		ch <- raw
	}
	s.subs[path] = append(s.subs[path], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		live := s.subs[path][:0]
		for _, sub := range s.subs[path] {
			if sub != ch {
				live = append(live, sub)
			}
		}
		s.subs[path] = live
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
