package server

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	pebblevfs "github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/dqlited/dqlited/admin"
	"github.com/dqlited/dqlited/internal/catalog"
	"github.com/dqlited/dqlited/internal/consensus"
	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/internal/replication"
	"github.com/dqlited/dqlited/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cat := catalog.New(t.TempDir())
	node := consensus.NewSingleNode("node-a")
	pebbleDB, err := pebble.Open("", &pebble.Options{FS: pebblevfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { pebbleDB.Close() })

	repl := replication.New(node, cat, pebbleDB)
	cat.SetProposer(repl)

	p := pool.New(2)
	p.Start()
	t.Cleanup(p.Stop)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	s := New(addr, cat, p, node, admin.NewRouter(p))
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	// give the accept goroutines a beat to start listening
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 10*time.Millisecond)

	return s
}

func TestServerServesWireProtocolHelo(t *testing.T) {
	s := newTestServer(t)

	conn, err := net.Dial("tcp", s.addr)
	require.NoError(t, err)
	defer conn.Close()

	w := wire.NewWriter()
	w.WriteUint64(1)
	req := wire.Message{Type: uint8(wire.Helo), Body: w.Bytes()}
	out, err := wire.Encode(req)
	require.NoError(t, err)
	_, err = conn.Write(out)
	require.NoError(t, err)

	header := make([]byte, 8)
	_, err = readFull(conn, header)
	require.NoError(t, err)
	h, err := wire.DecodeHeader(header)
	require.NoError(t, err)
	require.Equal(t, uint8(wire.Welcome), h.Type)

	body := make([]byte, h.BodyLen())
	_, err = readFull(conn, body)
	require.NoError(t, err)

	r := wire.NewReader(body)
	leader, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "node-a", leader)
}

func TestServerServesAdminHTTPOnSamePort(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get("http://" + s.addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
