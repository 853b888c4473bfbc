package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ludoduel/internal/game"
	"ludoduel/internal/logger"
	"ludoduel/internal/store"
)

// ErrLobbyFull: оба места заняты чужими клиентами; не ретраится,
// показывается пользователю
var ErrLobbyFull = errors.New("lobby: both seats taken")

// Lobby распределяет два места комнаты между подключающимися клиентами.
// Документ rooms/{roomID}/lobby/players, все записи — через транзакцию
// стора, поэтому два клиента, зашедшие в один момент, не могут занять
// одно место.
type Lobby struct {
	st     store.Store
	roomID string
}

func New(st store.Store, roomID string) *Lobby {
	return &Lobby{st: st, roomID: roomID}
}

// Path — ключ документа рассадки этой комнаты
func (l *Lobby) Path() string {
	return fmt.Sprintf("rooms/%s/lobby/players", l.roomID)
}

// Join сажает клиента на свободное место. Порядок строго p1-потом-p2:
// место достаётся той транзакции, которая закоммитилась первой. Если
// клиент уже сидит (reconnect после refresh) — возвращается его же место
// без записи.
func (l *Lobby) Join(ctx context.Context, clientID string) (game.Seat, error) {
	var seat game.Seat

	err := l.st.Transact(ctx, l.Path(), func(raw []byte) ([]byte, error) {
		var players game.SeatPlayers
		if raw != nil {
			if err := json.Unmarshal(raw, &players); err != nil {
				return nil, fmt.Errorf("decode seat map: %w", err)
			}
		}

		switch {
		case players.P1 == clientID:
			seat = game.SeatP1
			return raw, nil // уже наше, не переписываем
		case players.P2 == clientID:
			seat = game.SeatP2
			return raw, nil
		case players.P1 == "":
			players.P1 = clientID
			seat = game.SeatP1
		case players.P2 == "":
			players.P2 = clientID
			seat = game.SeatP2
		default:
			return nil, ErrLobbyFull
		}

		return json.Marshal(players)
	})
	if err != nil {
		return "", err
	}

	logger.Info("joined lobby", "room", l.roomID, "seat", seat, "client", clientID)
	return seat, nil
}

// Leave убирает собственную запись клиента (best-effort при завершении
// процесса). Общий документ матча не трогается, чтобы второй игрок мог
// досмотреть результат.
func (l *Lobby) Leave(ctx context.Context, clientID string) error {
	return l.st.Transact(ctx, l.Path(), func(raw []byte) ([]byte, error) {
		if raw == nil {
			return nil, nil
		}
		var players game.SeatPlayers
		if err := json.Unmarshal(raw, &players); err != nil {
			return nil, fmt.Errorf("decode seat map: %w", err)
		}

		switch clientID {
		case players.P1:
			players.P1 = ""
		case players.P2:
			players.P2 = ""
		default:
			return raw, nil // место уже перезанято кем-то другим
		}

		return json.Marshal(players)
	})
}

// Players читает текущую рассадку одним запросом
func (l *Lobby) Players(ctx context.Context) (game.SeatPlayers, error) {
	var players game.SeatPlayers
	err := l.st.Read(ctx, l.Path(), &players)
	if errors.Is(err, store.ErrNotFound) {
		return game.SeatPlayers{}, nil
	}
	return players, err
}

// Watch — подписка на рассадку для строки статуса в интерфейсе
func (l *Lobby) Watch(ctx context.Context) (<-chan game.SeatPlayers, error) {
	raw, err := l.st.Subscribe(ctx, l.Path())
	if err != nil {
		return nil, err
	}

	out := make(chan game.SeatPlayers, 1)
	go func() {
		defer close(out)
		for snapshot := range raw {
			var players game.SeatPlayers
			if err := json.Unmarshal(snapshot, &players); err != nil {
				logger.Warn("bad seat map snapshot", "room", l.roomID, "error", err)
				continue
			}
			select {
			case out <- players:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
