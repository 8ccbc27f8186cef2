package service

import (
	"errors"
	"fmt"

	"safimatch/model"
)

var (
	ErrNotAuthenticated = model.ErrNotAuthenticated
	ErrProfileNotFound  = errors.New("Perfil não encontrado")
	ErrMatchNotFound    = errors.New("match não encontrado")
	ErrMessageNotFound  = errors.New("mensagem não encontrada")
	ErrInvalidSlot      = errors.New("slot de foto inválido (0 a 5)")
	ErrInvalidLikeKind  = errors.New("tipo de curtida inválido")
	ErrSelfTarget       = errors.New("não é possível fazer isso consigo mesma")
	ErrEmptyMessage     = errors.New("mensagem vazia")
	ErrEmptyQueue       = errors.New("nenhum perfil na fila")
	ErrNothingToUndo    = errors.New("nada para desfazer")
	ErrPhotoExpired     = errors.New("esta foto já foi visualizada")
	ErrNotRecipient     = errors.New("só a destinatária pode abrir esta foto")
	ErrForeignObject    = errors.New("arquivo de outra usuária")
	ErrNoPhotosUploaded = errors.New("Falha no upload das fotos")
	ErrNoSession        = errors.New("sessão não encontrada")
)

// InputError 请求数据不合法，消息可以直接展示给用户
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func invalidInput(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}
