package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req, err := NewRequest(OpTransfer, Transfer{From: "ACC1", To: "ACC2", Amount: "10.50"})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := binary.BigEndian.Uint32(buf.Bytes()[:4]); int(got) != buf.Len()-4 {
		t.Fatalf("length prefix %d does not match body %d", got, buf.Len()-4)
	}
	var back Request
	if err := ReadFrame(&buf, &back); err != nil {
		t.Fatalf("read: %v", err)
	}
	var p Transfer
	if err := back.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Op != OpTransfer || p.Amount != "10.50" || p.FromCurrency != "" {
		t.Fatalf("unexpected round trip: %+v %+v", back, p)
	}
}

func TestReadFrameErrors(t *testing.T) {
	var v Request
	if err := ReadFrame(bytes.NewReader(nil), &v); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on empty stream, got %v", err)
	}

	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, MaxFrameSize+1)
	if err := ReadFrame(bytes.NewReader(hdr), &v); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}

	binary.BigEndian.PutUint32(hdr, 10)
	if err := ReadFrame(bytes.NewReader(append(hdr, '{')), &v); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}

	body := []byte("not json")
	binary.BigEndian.PutUint32(hdr, uint32(len(body)))
	if err := ReadFrame(bytes.NewReader(append(hdr, body...)), &v); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	req := Request{Op: OpDeposit, Payload: []byte(`{"account": 5}`)}
	var m Movement
	if err := req.Decode(&m); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
	empty := Request{Op: OpGetAccounts}
	if err := empty.Decode(&m); err != nil {
		t.Fatalf("absent payload should decode: %v", err)
	}
}

func TestCodecOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ca, cb := NewCodec(a), NewCodec(b)

	go func() {
		_ = ca.Write(Response{OK: true, Message: "hello", Accounts: []Account{{Number: "ACC1", Currency: "RUB", Balance: "0.00"}}})
	}()
	resp, err := cb.ReadResponse()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !resp.OK || len(resp.Accounts) != 1 || resp.Accounts[0].Balance != "0.00" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOpKnown(t *testing.T) {
	if !OpLogout.Known() || Op("DROP_TABLES").Known() {
		t.Fatalf("Known misclassifies ops")
	}
}
