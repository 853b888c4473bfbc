package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ludoduel/internal/game"
	"ludoduel/internal/store"
)

var testPlayers = game.SeatPlayers{P1: "u_red", P2: "u_orange"}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(store.NewMemoryStore(), "test-room", 3*time.Minute)
}

func startMatch(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.TryStart(context.Background(), testPlayers); err != nil {
		t.Fatalf("try start: %v", err)
	}
}

func TestTryStart_Idempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// до заполнения обоих мест матч не создаётся
	if err := e.TryStart(ctx, game.SeatPlayers{P1: "u_red"}); err != nil {
		t.Fatalf("try start: %v", err)
	}
	if s, _ := e.State(ctx); s != nil {
		t.Fatalf("матч не должен создаваться с одним игроком")
	}

	startMatch(t, e)
	first, err := e.State(ctx)
	if err != nil || first == nil {
		t.Fatalf("state: %v", err)
	}
	if !first.Started || first.CurrentTurn != 1 || first.Finished() {
		t.Fatalf("неверное начальное состояние: %+v", first)
	}
	if first.Deadline <= time.Now().UnixMilli() {
		t.Fatalf("дедлайн обязан быть в будущем: %d", first.Deadline)
	}

	// оба клиента зовут tryStart почти одновременно: started переходит
	// false->true ровно один раз, дедлайн одинаковый у всех наблюдателей
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.TryStart(ctx, testPlayers); err != nil {
				t.Errorf("concurrent try start: %v", err)
			}
		}()
	}
	wg.Wait()

	second, _ := e.State(ctx)
	if second.Deadline != first.Deadline {
		t.Fatalf("повторный tryStart сменил дедлайн: %d -> %d", first.Deadline, second.Deadline)
	}
}

func TestAttemptMove_Precheck(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	if _, err := e.AttemptMove(ctx, game.SeatP1); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("до старта положен ErrNotStarted, получено %v", err)
	}

	startMatch(t, e)

	if _, err := e.AttemptMove(ctx, game.SeatP2); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("чужой ход: положен ErrNotYourTurn, получено %v", err)
	}

	// завершённый матч отклоняет любые ходы
	if _, err := e.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := e.AttemptMove(ctx, game.SeatP1); !errors.Is(err, ErrFinished) {
		t.Fatalf("после финала положен ErrFinished, получено %v", err)
	}
}

func TestAttemptMove_AppliesAndAdvancesTurn(t *testing.T) {
	e := newEngine(t)
	e.roll = func() int { return 4 }
	ctx := context.Background()
	startMatch(t, e)

	res, err := e.AttemptMove(ctx, game.SeatP1)
	if err != nil {
		t.Fatalf("attempt move: %v", err)
	}
	if !res.Applied || res.Dice != 4 || res.To != 4 {
		t.Fatalf("неожиданный результат: %+v", res)
	}

	s, _ := e.State(ctx)
	if s.CurrentTurn != 2 || s.LastDice != 4 || s.Score.P1 != 4 {
		t.Fatalf("состояние после хода: %+v", s)
	}
	if s.Tokens.P1[0] != 4 {
		t.Fatalf("фишка обязана сдвинуться на 4, tokens=%v", s.Tokens.P1)
	}
}

func TestAttemptMove_TurnExclusivity(t *testing.T) {
	e := newEngine(t)
	e.roll = func() int { return 1 }
	ctx := context.Background()
	startMatch(t, e)

	// оба места одновременно спамят ходами; применяется только попытка,
	// совпавшая с currentTurn на момент коммита, поэтому применённые ходы
	// строго чередуются: p1 опережает p2 максимум на один
	const attempts = 40
	var appliedP1, appliedP2 int
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, seat := range []game.Seat{game.SeatP1, game.SeatP2} {
		wg.Add(1)
		go func(seat game.Seat) {
			defer wg.Done()
			for i := 0; i < attempts; i++ {
				res, err := e.AttemptMove(ctx, seat)
				if err != nil {
					continue // тихий локальный отказ
				}
				if res.Applied {
					mu.Lock()
					if seat == game.SeatP1 {
						appliedP1++
					} else {
						appliedP2++
					}
					mu.Unlock()
				}
			}
		}(seat)
	}
	wg.Wait()

	if appliedP1 == 0 && appliedP2 == 0 {
		t.Fatalf("ни один ход не применился")
	}
	diff := appliedP1 - appliedP2
	if diff != 0 && diff != 1 {
		t.Fatalf("нарушено чередование: p1=%d p2=%d", appliedP1, appliedP2)
	}

	// после чётного числа применённых ходов ход снова у p1, после
	// нечётного — у p2: передача хода безусловна и строго по очереди
	s, _ := e.State(ctx)
	wantTurn := 1
	if (appliedP1+appliedP2)%2 == 1 {
		wantTurn = 2
	}
	if s.CurrentTurn != wantTurn {
		t.Fatalf("currentTurn=%d после %d ходов, ожидался %d",
			s.CurrentTurn, appliedP1+appliedP2, wantTurn)
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	startMatch(t, e)

	// счёт {p1:14, p2:9} -> seat1
	setScores(t, e, 14, 9)

	// оба клиента финализируют в один тик
	results := make(chan string, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := e.Finalize(ctx)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			results <- w
		}()
	}
	wg.Wait()
	close(results)

	for w := range results {
		if w != game.WinnerSeat1 {
			t.Fatalf("оба вызова обязаны увидеть одного победителя, получено %q", w)
		}
	}

	s, _ := e.State(ctx)
	if s.Winner != game.WinnerSeat1 {
		t.Fatalf("winner=%q, ожидался %q", s.Winner, game.WinnerSeat1)
	}

	// повторная финализация не перезаписывает победителя
	setScores(t, e, 0, 100)
	w, err := e.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if w != game.WinnerSeat1 || mustState(t, e).Winner != game.WinnerSeat1 {
		t.Fatalf("winner обязан быть неизменяемым после записи, получено %q", w)
	}
}

func TestFinalize_Draw(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	startMatch(t, e)

	setScores(t, e, 5, 5)

	w, err := e.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if w != game.WinnerDraw {
		t.Fatalf("равный счёт даёт ничью, получено %q", w)
	}
}

func TestWatch_DeliversCommits(t *testing.T) {
	e := newEngine(t)
	e.roll = func() int { return 6 }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startMatch(t, e)

	states, err := e.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	// начальный снапшот
	s := nextState(t, states)
	if !s.Started || s.CurrentTurn != 1 {
		t.Fatalf("неожиданный начальный снапшот: %+v", s)
	}

	if _, err := e.AttemptMove(ctx, game.SeatP1); err != nil {
		t.Fatalf("attempt move: %v", err)
	}

	// подписка — единственный канал, по которому второй клиент видит ход
	s = nextState(t, states)
	if s.CurrentTurn != 2 || s.Tokens.P1[0] != 6 {
		t.Fatalf("снапшот после хода: %+v", s)
	}
}

// setScores подменяет счёт напрямую в сторе (только для тестов)
func setScores(t *testing.T, e *Engine, p1, p2 int) {
	t.Helper()
	err := e.st.Transact(context.Background(), e.Path(), func(raw []byte) ([]byte, error) {
		s := decodeState(t, raw)
		s.Score.P1, s.Score.P2 = p1, p2
		return encodeState(t, s), nil
	})
	if err != nil {
		t.Fatalf("set scores: %v", err)
	}
}

func mustState(t *testing.T, e *Engine) *game.State {
	t.Helper()
	s, err := e.State(context.Background())
	if err != nil || s == nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func decodeState(t *testing.T, raw []byte) *game.State {
	t.Helper()
	if raw == nil {
		t.Fatalf("документ матча отсутствует")
	}
	var s game.State
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &s
}

func encodeState(t *testing.T, s *game.State) []byte {
	t.Helper()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func nextState(t *testing.T, ch <-chan game.State) game.State {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatalf("канал снапшотов закрыт")
		}
		return s
	case <-time.After(time.Second):
		t.Fatalf("снапшот не пришёл")
		return game.State{}
	}
}
