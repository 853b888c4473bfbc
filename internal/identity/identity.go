package identity

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientID генерирует уникальный id клиента на время жизни процесса.
// Id нигде не сохраняется: после рестарта процесс получает новый id
// и занимает место в лобби заново.
func NewClientID() string {
	return "u_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
