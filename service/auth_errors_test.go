package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"safimatch/gotrue"

	"github.com/stretchr/testify/assert"
)

func TestTranslateAuthError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&gotrue.Error{StatusCode: 400, Message: "Invalid login credentials"}, "E-mail ou senha incorretos."},
		{&gotrue.Error{StatusCode: 400, Message: "Email not confirmed"}, "Confirme seu e-mail antes de entrar."},
		{&gotrue.Error{StatusCode: 422, Message: "User already registered"}, "Este e-mail já está cadastrado."},
		{&gotrue.Error{StatusCode: 422, Message: "Password should be at least 6 characters."}, "A senha deve ter no mínimo 6 caracteres."},
		{&gotrue.Error{StatusCode: 400, Message: "Unable to validate email address: invalid format"}, "E-mail inválido."},
		{&gotrue.Error{StatusCode: 429, Message: "Email rate limit exceeded"}, "Muitas tentativas. Aguarde alguns minutos."},
		{fmt.Errorf("network request failed: %w", errors.New("connection refused")), "Erro de conexão. Verifique sua internet."},
		{fmt.Errorf("refresh: %w", context.DeadlineExceeded), "Erro de conexão. Verifique sua internet."},
		{errors.New("algo estranho"), "algo estranho"},
		{&gotrue.Error{StatusCode: 500}, "Ocorreu um erro inesperado."},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, TranslateAuthError(tc.err), tc.err.Error())
	}
	assert.Equal(t, "", TranslateAuthError(nil))
}
