package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ludoduel/internal/game"
	"ludoduel/internal/store"
)

func newLobby(t *testing.T) *Lobby {
	t.Helper()
	return New(store.NewMemoryStore(), "test-room")
}

func TestJoin_SeatsInOrder(t *testing.T) {
	l := newLobby(t)
	ctx := context.Background()

	seat, err := l.Join(ctx, "u_first")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if seat != game.SeatP1 {
		t.Fatalf("первый клиент обязан сесть на p1, получено %s", seat)
	}

	seat, err = l.Join(ctx, "u_second")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if seat != game.SeatP2 {
		t.Fatalf("второй клиент обязан сесть на p2, получено %s", seat)
	}

	if _, err := l.Join(ctx, "u_third"); !errors.Is(err, ErrLobbyFull) {
		t.Fatalf("третьему клиенту положен ErrLobbyFull, получено %v", err)
	}
}

func TestJoin_Reconnect(t *testing.T) {
	l := newLobby(t)
	ctx := context.Background()

	if _, err := l.Join(ctx, "u_a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := l.Join(ctx, "u_b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// повторный вход того же клиента возвращает его же место без записи
	seat, err := l.Join(ctx, "u_b")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if seat != game.SeatP2 {
		t.Fatalf("reconnect обязан вернуть прежнее место, получено %s", seat)
	}
}

func TestJoin_ConcurrentUniqueSeats(t *testing.T) {
	l := newLobby(t)
	ctx := context.Background()

	// спецификация: при любом числе конкурентных попыток на каждом месте
	// не больше одного id, третий id места не получает
	ids := []string{"u_1", "u_2", "u_3", "u_4", "u_5"}
	seats := make(map[string]game.Seat)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(ids))
	for _, id := range ids {
		go func(id string) {
			defer wg.Done()
			seat, err := l.Join(ctx, id)
			if err != nil {
				if !errors.Is(err, ErrLobbyFull) {
					t.Errorf("неожиданная ошибка для %s: %v", id, err)
				}
				return
			}
			mu.Lock()
			seats[id] = seat
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if len(seats) != 2 {
		t.Fatalf("места получили %d клиентов вместо 2: %v", len(seats), seats)
	}

	byseat := make(map[game.Seat][]string)
	for id, s := range seats {
		byseat[s] = append(byseat[s], id)
	}
	if len(byseat[game.SeatP1]) != 1 || len(byseat[game.SeatP2]) != 1 {
		t.Fatalf("каждое место занято ровно одним клиентом: %v", byseat)
	}

	players, err := l.Players(ctx)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if !players.Full() {
		t.Fatalf("оба места обязаны быть заняты: %+v", players)
	}
	if players.P1 == players.P2 {
		t.Fatalf("один клиент занял оба места: %+v", players)
	}
}

func TestLeave_FreesOwnSeatOnly(t *testing.T) {
	l := newLobby(t)
	ctx := context.Background()

	if _, err := l.Join(ctx, "u_a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := l.Join(ctx, "u_b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := l.Leave(ctx, "u_a"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	players, err := l.Players(ctx)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if players.P1 != "" || players.P2 != "u_b" {
		t.Fatalf("уход освобождает только своё место: %+v", players)
	}

	// уход чужого id — no-op
	if err := l.Leave(ctx, "u_ghost"); err != nil {
		t.Fatalf("leave чужого id: %v", err)
	}
	players, _ = l.Players(ctx)
	if players.P2 != "u_b" {
		t.Fatalf("чужая запись не должна удаляться: %+v", players)
	}

	// освободившееся p1 достаётся следующему
	seat, err := l.Join(ctx, "u_c")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if seat != game.SeatP1 {
		t.Fatalf("свободное p1 обязано уйти новому клиенту, получено %s", seat)
	}
}

func TestPlayers_EmptyLobby(t *testing.T) {
	l := newLobby(t)

	players, err := l.Players(context.Background())
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if players.P1 != "" || players.P2 != "" || players.Full() {
		t.Fatalf("пустое лобби: %+v", players)
	}
}
