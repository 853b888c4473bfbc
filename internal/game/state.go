package game

import "time"

// Seat — одно из двух фиксированных мест за доской
type Seat string

const (
	SeatP1 Seat = "p1"
	SeatP2 Seat = "p2"
)

const (
	TokensPerSeat = 4
	HomePos       = 0  // фишка дома / ещё не ходила
	FinishPos     = 63 // фишка дошла до конца

	DiceSides    = 6
	CaptureBonus = 10 // бонус за каждую срубленную фишку соперника

	MatchDuration = 3 * time.Minute
)

// значения поля winner; пустая строка = матч ещё идёт
const (
	WinnerSeat1 = "seat1"
	WinnerSeat2 = "seat2"
	WinnerDraw  = "draw"
)

// Num возвращает номер места (1 или 2), как он хранится в currentTurn
func (s Seat) Num() int {
	if s == SeatP2 {
		return 2
	}
	return 1
}

// Opponent возвращает противоположное место
func (s Seat) Opponent() Seat {
	if s == SeatP1 {
		return SeatP2
	}
	return SeatP1
}

// SeatPlayers — документ lobby/players: какое место каким клиентом занято
type SeatPlayers struct {
	P1 string `json:"p1,omitempty"`
	P2 string `json:"p2,omitempty"`
}

// Full сообщает, заняты ли оба места
func (p SeatPlayers) Full() bool {
	return p.P1 != "" && p.P2 != ""
}

// Tokens — позиции четырёх фишек каждого места, 0..63
type Tokens struct {
	P1 [TokensPerSeat]int `json:"p1"`
	P2 [TokensPerSeat]int `json:"p2"`
}

// Score — набранные очки по местам, только растут
type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// State — единственный канонический документ матча.
// Любая мутация — одна атомарная транзакция над всем документом.
type State struct {
	Started     bool        `json:"started"`
	CurrentTurn int         `json:"currentTurn"` // 1 или 2
	LastDice    int         `json:"lastDice"`    // 0 пока никто не бросал
	Deadline    int64       `json:"deadline"`    // unix-миллисекунды, общий для обоих клиентов
	Players     SeatPlayers `json:"players"`
	Tokens      Tokens      `json:"tokens"`
	Score       Score       `json:"score"`
	Winner      string      `json:"winner,omitempty"`
}

// NewState строит начальное состояние матча. Deadline вычисляется один раз
// внутри стартовой транзакции, поэтому оба клиента видят один и тот же
// момент окончания независимо от расхождения локальных часов.
func NewState(players SeatPlayers, now time.Time, duration time.Duration) *State {
	return &State{
		Started:     true,
		CurrentTurn: 1,
		Players:     players,
		Deadline:    now.Add(duration).UnixMilli(),
	}
}

// Finished сообщает, записан ли победитель
func (s *State) Finished() bool {
	return s.Winner != ""
}

// TokensOf возвращает указатель на фишки места
func (s *State) TokensOf(seat Seat) *[TokensPerSeat]int {
	if seat == SeatP2 {
		return &s.Tokens.P2
	}
	return &s.Tokens.P1
}

// ScoreOf возвращает указатель на счёт места
func (s *State) ScoreOf(seat Seat) *int {
	if seat == SeatP2 {
		return &s.Score.P2
	}
	return &s.Score.P1
}

// Remaining — сколько осталось до дедлайна по локальным часам
func (s *State) Remaining(now time.Time) time.Duration {
	left := time.UnixMilli(s.Deadline).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
