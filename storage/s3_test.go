package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFromURL(t *testing.T) {
	base := "http://localhost:8000/storage/v1/object/public/fotos-perfil"

	cases := []struct {
		in   string
		want string
	}{
		{base + "/u1/foto_0.jpg?t=123", "u1/foto_0.jpg"},
		{"https://cdn.example.com/storage/v1/object/public/fotos-perfil/u1/chat/m1/5.jpg", "u1/chat/m1/5.jpg"},
		{"u1/foto_2.jpg", "u1/foto_2.jpg"},
		{"/u1/foto_3.png", "u1/foto_3.png"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, KeyFromURL(base, tc.in), tc.in)
	}
}

func TestPublicURL(t *testing.T) {
	b := &Bucket{publicBase: "http://localhost:8000/storage/v1/object/public/fotos-perfil"}
	assert.Equal(t, "http://localhost:8000/storage/v1/object/public/fotos-perfil/u1/foto_0.jpg", b.PublicURL("u1/foto_0.jpg"))
}
