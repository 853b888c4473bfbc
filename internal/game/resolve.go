package game

import (
	"crypto/rand"
	"math/big"
)

// MoveResult описывает исход одной попытки хода
type MoveResult struct {
	Applied  bool   `json:"applied"`
	Reason   string `json:"reason,omitempty"` // почему не применён
	Dice     int    `json:"dice,omitempty"`
	Token    int    `json:"token"`    // индекс сдвинутой фишки, -1 при пасе
	From     int    `json:"from"`     // позиция до хода
	To       int    `json:"to"`       // позиция после хода
	Captures int    `json:"captures"` // сколько фишек соперника отправлено домой
	Passed   bool   `json:"passed"`   // все фишки финишировали, ход пропущен
}

// причины отклонения хода; все — тихие, не ошибки
const (
	ReasonNotStarted  = "not_started"
	ReasonFinished    = "already_finished"
	ReasonNotYourTurn = "not_your_turn"
)

// Roll бросает кубик: равномерно 1..6
func Roll() int {
	n, err := rand.Int(rand.Reader, big.NewInt(DiceSides))
	if err != nil {
		// никогда не должно происходить
		return 1
	}
	return int(n.Int64()) + 1
}

// Resolve применяет один бросок к состоянию. Чистая функция над *State:
// вызывается только изнутри тела транзакции и может быть повторена при
// конфликте, каждый раз над свежим состоянием и свежим броском.
//
// Порядок строго фиксирован: повторная валидация, выбор фишки, сдвиг с
// ограничением 63, очки за клетки, срубание, безусловная передача хода.
func Resolve(s *State, seat Seat, dice int) MoveResult {
	// локальная проверка вызывающего могла устареть к моменту исполнения
	// транзакции, поэтому проверяем ещё раз над актуальным документом
	if !s.Started {
		return MoveResult{Reason: ReasonNotStarted, Token: -1}
	}
	if s.Finished() {
		return MoveResult{Reason: ReasonFinished, Token: -1}
	}
	if s.CurrentTurn != seat.Num() {
		return MoveResult{Reason: ReasonNotYourTurn, Token: -1}
	}

	res := MoveResult{Applied: true, Dice: dice, Token: -1}

	mine := s.TokensOf(seat)
	for i := 0; i < TokensPerSeat; i++ {
		if mine[i] < FinishPos {
			res.Token = i
			break
		}
	}

	if res.Token == -1 {
		// двигать нечего: бросок фиксируем, ход всё равно переходит
		res.Passed = true
		s.LastDice = dice
		s.CurrentTurn = seat.Opponent().Num()
		return res
	}

	res.From = mine[res.Token]
	mine[res.Token] += dice
	if mine[res.Token] > FinishPos {
		// перелёт поглощается, не отскакивает и не отклоняется
		mine[res.Token] = FinishPos
	}
	res.To = mine[res.Token]

	// очки начисляются только когда фишка действительно сдвинулась
	*s.ScoreOf(seat) += dice

	// срубание: каждая фишка соперника ровно на клетке приземления,
	// кроме общего дома 0, уходит домой и даёт бонус независимо
	if res.To != HomePos {
		theirs := s.TokensOf(seat.Opponent())
		for i := 0; i < TokensPerSeat; i++ {
			if theirs[i] == res.To {
				theirs[i] = HomePos
				*s.ScoreOf(seat) += CaptureBonus
				res.Captures++
			}
		}
	}

	s.LastDice = dice
	s.CurrentTurn = seat.Opponent().Num()
	return res
}

// FinalWinner сравнивает счёт и возвращает значение для поля winner
func FinalWinner(s *State) string {
	switch {
	case s.Score.P1 > s.Score.P2:
		return WinnerSeat1
	case s.Score.P2 > s.Score.P1:
		return WinnerSeat2
	default:
		return WinnerDraw
	}
}
