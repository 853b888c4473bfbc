package store

import (
	"context"
	"errors"
)

// TxFunc получает последнюю закоммиченную версию документа (nil если его
// ещё нет) и возвращает новую. Вернуть вход без изменений = no-op.
// Функция может быть вызвана несколько раз при конфликте с другим
// писателем, поэтому она обязана быть чистой относительно своих аргументов.
type TxFunc func(raw []byte) ([]byte, error)

// Store — дерево JSON-документов с атомарными транзакциями по пути
// и push-подписками на изменения. Redis в проде, память в тестах.
type Store interface {
	// Read читает документ по пути и декодирует его в v.
	// Возвращает ErrNotFound если документа нет.
	Read(ctx context.Context, path string, v any) error

	// Transact атомарно применяет fn к документу: fn выполняется над
	// последней версией, конфликт с конкурентным писателем приводит
	// к повтору с перечитанным значением.
	Transact(ctx context.Context, path string, fn TxFunc) error

	// Subscribe отдаёт канал, в который приходит полное текущее значение
	// документа после каждого коммита, плюс начальный снапшот.
	// Канал закрывается при отмене ctx.
	Subscribe(ctx context.Context, path string) (<-chan []byte, error)
}

var (
	ErrNotFound = errors.New("store: document not found")

	// ErrTxRetryLimit: транзакция не смогла закоммититься за отведённое
	// число попыток — только при аномальной конкуренции
	ErrTxRetryLimit = errors.New("store: transaction retry limit reached")
)
