package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ludoduel/internal/game"
	"ludoduel/internal/logger"
	"ludoduel/internal/metrics"
	"ludoduel/internal/store"
)

// локальные отказы хода; тихие — корректное следующее состояние всё равно
// придёт по подписке
var (
	ErrNotStarted  = errors.New("match: not started")
	ErrNotYourTurn = errors.New("match: not your turn")
	ErrFinished    = errors.New("match: already finished")
)

// Engine — ядро синхронизации ходов: один канонический документ матча,
// каждая мутация — одна атомарная транзакция над ним целиком.
type Engine struct {
	st       store.Store
	roomID   string
	duration time.Duration
	now      func() time.Time // подменяется в тестах
	roll     func() int       // подменяется в тестах
}

func NewEngine(st store.Store, roomID string, duration time.Duration) *Engine {
	if duration <= 0 {
		duration = game.MatchDuration
	}
	return &Engine{
		st:       st,
		roomID:   roomID,
		duration: duration,
		now:      time.Now,
		roll:     game.Roll,
	}
}

// Path — ключ документа матча этой комнаты
func (e *Engine) Path() string {
	return fmt.Sprintf("rooms/%s/game", e.roomID)
}

// State читает текущий документ матча; (nil, nil) если матч ещё не создан
func (e *Engine) State(ctx context.Context) (*game.State, error) {
	var s game.State
	err := e.st.Read(ctx, e.Path(), &s)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TryStart идемпотентно создаёт матч, когда оба места заняты. Оба клиента
// зовут его почти одновременно; гонку двойной инициализации снимает
// проверка started внутри транзакции: второй вызов — no-op. Дедлайн
// считается один раз внутри транзакции, так что обоим достаётся одно и
// то же значение.
func (e *Engine) TryStart(ctx context.Context, players game.SeatPlayers) error {
	if !players.Full() {
		return nil // ждём второго игрока
	}

	return e.st.Transact(ctx, e.Path(), func(raw []byte) ([]byte, error) {
		if raw != nil {
			var cur game.State
			if err := json.Unmarshal(raw, &cur); err == nil && cur.Started {
				return raw, nil // уже стартовал
			}
		}
		s := game.NewState(players, e.now(), e.duration)
		logger.Info("match started", "room", e.roomID,
			"deadline", time.UnixMilli(s.Deadline))
		return json.Marshal(s)
	})
}

// AttemptMove пытается сделать ход за место seat.
//
// Сначала быстрый локальный отказ по последнему известному снапшоту —
// это не граница корректности, а экономия транзакции. Сама мутация —
// одна транзакция: повторная валидация, бросок кубика, выбор фишки,
// сдвиг, очки, срубание, передача хода. Бросок выполняется внутри тела
// транзакции намеренно: при конфликте стор перезапустит тело, и бросок
// с производными эффектами пересчитаются против свежего документа, а не
// применятся устаревшими.
func (e *Engine) AttemptMove(ctx context.Context, seat game.Seat) (game.MoveResult, error) {
	if snap, err := e.State(ctx); err == nil {
		if err := precheck(snap, seat); err != nil {
			metrics.MovesRejected.WithLabelValues(rejectReason(err)).Inc()
			return game.MoveResult{Reason: rejectReason(err), Token: -1}, err
		}
	}

	var res game.MoveResult
	err := e.st.Transact(ctx, e.Path(), func(raw []byte) ([]byte, error) {
		if raw == nil {
			res = game.MoveResult{Reason: game.ReasonNotStarted, Token: -1}
			return nil, nil
		}
		var s game.State
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode match state: %w", err)
		}

		res = game.Resolve(&s, seat, e.roll())
		if !res.Applied {
			return raw, nil // документ не трогаем
		}
		return json.Marshal(&s)
	})
	if err != nil {
		return res, err
	}

	if res.Applied {
		metrics.MovesApplied.Inc()
		metrics.Captures.Add(float64(res.Captures))
		logger.Info("move applied", "room", e.roomID, "seat", seat,
			"dice", res.Dice, "token", res.Token, "to", res.To,
			"captures", res.Captures, "passed", res.Passed)
	} else {
		// ход устарел к моменту коммита — молча роняем
		metrics.MovesRejected.WithLabelValues(res.Reason).Inc()
		logger.Debug("move not applied", "room", e.roomID, "seat", seat, "reason", res.Reason)
	}
	return res, nil
}

// Finalize записывает победителя по истечении времени. Оба клиента зовут
// его в один и тот же тик, поэтому проверка winner и запись результата
// обязаны быть в одной транзакции: выигрывает первый коммит, второй —
// идемпотентный no-op.
func (e *Engine) Finalize(ctx context.Context) (string, error) {
	var winner string
	err := e.st.Transact(ctx, e.Path(), func(raw []byte) ([]byte, error) {
		if raw == nil {
			return nil, nil
		}
		var s game.State
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode match state: %w", err)
		}

		if s.Finished() {
			winner = s.Winner
			return raw, nil // уже финализирован
		}

		s.Winner = game.FinalWinner(&s)
		winner = s.Winner
		metrics.Finalizations.Inc()
		logger.Info("match finalized", "room", e.roomID, "winner", winner,
			"score_p1", s.Score.P1, "score_p2", s.Score.P2)
		return json.Marshal(&s)
	})
	return winner, err
}

// Watch — декодированная подписка на документ матча
func (e *Engine) Watch(ctx context.Context) (<-chan game.State, error) {
	raw, err := e.st.Subscribe(ctx, e.Path())
	if err != nil {
		return nil, err
	}

	out := make(chan game.State, 1)
	go func() {
		defer close(out)
		for snapshot := range raw {
			var s game.State
			if err := json.Unmarshal(snapshot, &s); err != nil {
				logger.Warn("bad match snapshot", "room", e.roomID, "error", err)
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func precheck(s *game.State, seat game.Seat) error {
	if s == nil || !s.Started {
		return ErrNotStarted
	}
	if s.Finished() {
		return ErrFinished
	}
	if s.CurrentTurn != seat.Num() {
		return ErrNotYourTurn
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotStarted):
		return game.ReasonNotStarted
	case errors.Is(err, ErrFinished):
		return game.ReasonFinished
	default:
		return game.ReasonNotYourTurn
	}
}
