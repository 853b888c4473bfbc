package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ludoduel/internal/game"
	"ludoduel/internal/lobby"
	"ludoduel/internal/logger"
	"ludoduel/internal/match"
	"ludoduel/internal/repository"
	"ludoduel/internal/ws"
)

// пауза перед автоброском: даёт снапшотам разъехаться по подписчикам
// и имитирует темп живого игрока
const defaultThinkDelay = 700 * time.Millisecond

// Session — жизненный цикл одного процесса-игрока: занять место, запустить
// матч, реагировать на снапшоты, бросать кубик в свой ход, финализировать
// по дедлайну и прибрать за собой при выходе. Авторитетное состояние
// целиком живёт в сторе; сессия держит только последний снапшот для
// отдачи наружу.
type Session struct {
	ClientID string

	lobby   *lobby.Lobby
	engine  *match.Engine
	hub     *ws.Hub                       // может быть nil
	history *repository.HistoryRepository // может быть nil
	roomID  string

	thinkDelay time.Duration

	mu          sync.RWMutex
	seat        game.Seat
	last        *game.State
	countdown   *match.Countdown
	armedFor    int64 // дедлайн, для которого уже запущен отсчёт
	movePending bool
	recorded    bool
}

func NewSession(clientID, roomID string, lb *lobby.Lobby, eng *match.Engine, hub *ws.Hub, history *repository.HistoryRepository) *Session {
	return &Session{
		ClientID:   clientID,
		roomID:     roomID,
		lobby:      lb,
		engine:     eng,
		hub:        hub,
		history:    history,
		thinkDelay: defaultThinkDelay,
	}
}

// Seat возвращает место, занятое этой сессией
func (s *Session) Seat() game.Seat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seat
}

// Snapshot — последний известный документ матча плюс остаток времени
func (s *Session) Snapshot() (game.State, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return game.State{}, "", false
	}
	return *s.last, match.FormatRemaining(s.last.Remaining(time.Now())), true
}

// Run блокируется до отмены ctx. Ошибка возвращается только если сессию
// не удалось поднять (нет места, стор недоступен).
func (s *Session) Run(ctx context.Context) error {
	seat, err := s.lobby.Join(ctx, s.ClientID)
	if err != nil {
		// ErrLobbyFull не ретраим: отказ показывается пользователю
		return err
	}
	s.mu.Lock()
	s.seat = seat
	s.mu.Unlock()

	// уходя, освобождаем только свою запись в лобби; документ матча
	// не трогаем, чтобы второй игрок досмотрел результат
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.lobby.Leave(leaveCtx, s.ClientID); err != nil {
			logger.Warn("lobby leave failed", "client", s.ClientID, "error", err)
		}
	}()

	// возможно оба уже сидят (reconnect в идущий матч)
	players, err := s.lobby.Players(ctx)
	if err == nil {
		if err := s.engine.TryStart(ctx, players); err != nil {
			logger.Warn("try start failed", "room", s.roomID, "error", err)
		}
	}

	seats, err := s.lobby.Watch(ctx)
	if err != nil {
		return err
	}
	states, err := s.engine.Watch(ctx)
	if err != nil {
		return err
	}

	logger.Info("session running", "room", s.roomID, "seat", seat, "client", s.ClientID)

	for {
		select {
		case <-ctx.Done():
			s.stopCountdown()
			return nil

		case players, ok := <-seats:
			if !ok {
				return nil
			}
			logger.Debug("lobby changed", "room", s.roomID,
				"p1", players.P1 != "", "p2", players.P2 != "")
			// инициализация идемпотентна, зовём при каждом заполнении
			if players.Full() {
				if err := s.engine.TryStart(ctx, players); err != nil {
					logger.Warn("try start failed", "room", s.roomID, "error", err)
				}
			}

		case state, ok := <-states:
			if !ok {
				return nil
			}
			s.onState(ctx, state)
		}
	}
}

// onState — единственная точка реакции на закоммиченное состояние.
// Подписка — единственный способ узнать о ходах второго клиента.
func (s *Session) onState(ctx context.Context, state game.State) {
	s.mu.Lock()
	s.last = &state
	seat := s.seat
	if state.CurrentTurn != seat.Num() {
		// ход не наш: запланированная попытка либо применилась,
		// либо будет молча отвергнута — флаг можно снимать
		s.movePending = false
	}
	schedule := state.Started && !state.Finished() &&
		state.CurrentTurn == seat.Num() && !s.movePending
	if schedule {
		s.movePending = true
	}
	s.mu.Unlock()

	if s.hub != nil {
		if raw, err := json.Marshal(&state); err == nil {
			s.hub.Broadcast(raw)
		}
	}

	if state.Started && !state.Finished() {
		s.armCountdown(ctx, state.Deadline)
	}

	if state.Finished() {
		s.stopCountdown()
		s.recordOnce(&state)
		logger.Info("winner announced", "room", s.roomID, "winner", state.Winner,
			"score_p1", state.Score.P1, "score_p2", state.Score.P2)
		return
	}

	if schedule {
		go s.moveAfterDelay(ctx, seat)
	}
}

func (s *Session) moveAfterDelay(ctx context.Context, seat game.Seat) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.thinkDelay):
	}

	// отказ тут не фатален: актуальное состояние всё равно приедет
	// по подписке
	res, err := s.engine.AttemptMove(ctx, seat)
	if err != nil &&
		!errors.Is(err, match.ErrNotYourTurn) &&
		!errors.Is(err, match.ErrNotStarted) &&
		!errors.Is(err, match.ErrFinished) {
		logger.Warn("move attempt failed", "room", s.roomID, "seat", seat, "error", err)
	}

	if !res.Applied {
		// попытка не закоммитилась — разрешаем следующему снапшоту
		// запланировать новую
		s.mu.Lock()
		s.movePending = false
		s.mu.Unlock()
	}
}

// armCountdown запускает локальный отсчёт один раз на каждый дедлайн
func (s *Session) armCountdown(ctx context.Context, deadline int64) {
	s.mu.Lock()
	if s.armedFor == deadline {
		s.mu.Unlock()
		return
	}
	if s.countdown != nil {
		s.countdown.Stop()
	}
	cd := match.NewCountdown(deadline, func() {
		// оба клиента попадут сюда в один тик; транзакция финализации
		// идемпотентна, победитель запишется ровно один раз
		if _, err := s.engine.Finalize(ctx); err != nil {
			logger.Warn("finalize failed", "room", s.roomID, "error", err)
		}
	})
	s.countdown = cd
	s.armedFor = deadline
	s.mu.Unlock()

	go func() {
		for t := range cd.Ticks() {
			logger.Debug("countdown", "room", s.roomID, "remaining", t)
		}
	}()
	cd.Start()
}

func (s *Session) stopCountdown() {
	s.mu.Lock()
	cd := s.countdown
	s.mu.Unlock()
	if cd != nil {
		cd.Stop()
	}
}

// recordOnce пишет строку истории после перехода winner из пустого в
// терминальное значение; пишет только p1, чтобы не дублировать строки
func (s *Session) recordOnce(state *game.State) {
	s.mu.Lock()
	already := s.recorded
	s.recorded = true
	seat := s.seat
	s.mu.Unlock()

	if already || s.history == nil || seat != game.SeatP1 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &repository.MatchRecord{
		RoomID:  s.roomID,
		P1:      state.Players.P1,
		P2:      state.Players.P2,
		ScoreP1: state.Score.P1,
		ScoreP2: state.Score.P2,
		Winner:  state.Winner,
	}
	if err := s.history.Create(ctx, rec); err != nil {
		logger.Warn("history store failed", "room", s.roomID, "error", err)
	}
}
