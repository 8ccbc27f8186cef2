package service

import (
	"context"
	"errors"
	"net"
	"strings"

	"safimatch/gotrue"
)

var authErrorMessages = []struct {
	pattern string
	message string
}{
	{"Invalid login credentials", "E-mail ou senha incorretos."},
	{"Email not confirmed", "Confirme seu e-mail antes de entrar."},
	{"User already registered", "Este e-mail já está cadastrado."},
	{"Password should be at least", "A senha deve ter no mínimo 6 caracteres."},
	{"Unable to validate email address", "E-mail inválido."},
	{"Email rate limit exceeded", "Muitas tentativas. Aguarde alguns minutos."},
	{"network", "Erro de conexão. Verifique sua internet."},
}

const (
	msgConnectionError = "Erro de conexão. Verifique sua internet."
	msgUnexpectedError = "Ocorreu um erro inesperado."
)

// TranslateAuthError 把认证错误翻译成给用户看的文案
func TranslateAuthError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	var gerr *gotrue.Error
	if errors.As(err, &gerr) {
		msg = gerr.Message
	}

	for _, m := range authErrorMessages {
		if strings.Contains(msg, m.pattern) {
			return m.message
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return msgConnectionError
	}

	if msg == "" {
		return msgUnexpectedError
	}
	return msg
}
