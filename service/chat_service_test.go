package service

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"safimatch/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// silentPostgres 接受连接但从不回应
func silentPostgres(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return ln.Addr().(*net.TCPAddr).AddrPort().String()
}

func TestSenderLookupIsBounded(t *testing.T) {
	host, port, err := net.SplitHostPort(silentPostgres(t))
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=safimatch dbname=safimatch sslmode=disable", host, port),
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	s := NewChatService(db)
	s.lookupTimeout = 100 * time.Millisecond

	ident := model.Identity{UserID: uuid.New(), Role: "authenticated"}
	start := time.Now()
	snippet := s.senderFor(ident, uuid.New())

	assert.Nil(t, snippet)
	assert.Less(t, time.Since(start), 2*time.Second)
}
