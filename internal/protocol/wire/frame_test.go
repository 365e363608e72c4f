package wire

import (
	"bytes"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    *Header
		wantErr error
	}{
		{
			name:    "TooShort",
			data:    make([]byte, HeaderSize-1),
			wantErr: ErrMessageTooShort,
		},
		{
			name: "SizeMismatch",
			data: func() []byte {
				d := make([]byte, HeaderSize)
				d[15] = 10 // total size 10
				d[19] = 6  // data size 6
				return d
			}(),
			wantErr: ErrSizeMismatch,
		},
		{
			name:    "BodySmallerThanParamCount",
			data:    make([]byte, HeaderSize), // both sizes zero
			wantErr: ErrMessageTooShort,
		},
		{
			name: "ValidLoginHeader",
			data: []byte{
				0x00, 0x00, // flags, is-reply
				0x00, 0x6b, // type 107 (Login)
				0x00, 0x00, 0x00, 0x01, // id 1
				0x00, 0x00, 0x00, 0x00, // error code
				0x00, 0x00, 0x00, 0x02, // total size 2
				0x00, 0x00, 0x00, 0x02, // data size 2
			},
			want: &Header{Type: TranLogin, ID: 1, TotalSize: 2, DataSize: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.data)

			if err != tt.wantErr {
				t.Fatalf("ParseHeader() error = %v, want %v", err, tt.wantErr)
			}
			if tt.want == nil {
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseHeader() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Flags:     0,
		IsReply:   1,
		Type:      TranReply,
		ID:        0xdeadbeef,
		ErrorCode: 1,
		TotalSize: 42,
		DataSize:  42,
	}

	encoded := h.Encode()
	if len(encoded) != HeaderSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), HeaderSize)
	}

	parsed, err := ParseHeader(encoded)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if *parsed != *h {
		t.Errorf("round-trip = %+v, want %+v", parsed, h)
	}
}

func TestFrameEncode(t *testing.T) {
	f := New(TranChatMsg,
		NewStringField(FieldData, "\r guest: hello"),
	)

	encoded := f.Encode()

	// Header total size covers param count plus one field record.
	wantBody := 2 + 4 + len("\r guest: hello")
	h, err := ParseHeader(encoded[:HeaderSize])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if int(h.TotalSize) != wantBody {
		t.Errorf("TotalSize = %d, want %d", h.TotalSize, wantBody)
	}
	if h.TotalSize != h.DataSize {
		t.Errorf("TotalSize %d != DataSize %d", h.TotalSize, h.DataSize)
	}
	if len(encoded) != HeaderSize+wantBody {
		t.Errorf("frame length = %d, want %d", len(encoded), HeaderSize+wantBody)
	}

	fields, err := ParseBody(encoded[HeaderSize:])
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if len(fields) != 1 || fields[0].ID != FieldData {
		t.Fatalf("fields = %+v", fields)
	}
	if fields[0].Text() != "\r guest: hello" {
		t.Errorf("field text = %q", fields[0].Text())
	}
}

func TestParseBody(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		fields, err := ParseBody([]byte{0, 0})
		if err != nil {
			t.Fatalf("ParseBody() error = %v", err)
		}
		if len(fields) != 0 {
			t.Errorf("fields = %+v, want none", fields)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		if _, err := ParseBody([]byte{0}); err != ErrMessageTooShort {
			t.Errorf("error = %v, want %v", err, ErrMessageTooShort)
		}
	})

	t.Run("TruncatedFieldHeader", func(t *testing.T) {
		if _, err := ParseBody([]byte{0, 1, 0, 100}); err != ErrBodyTruncated {
			t.Errorf("error = %v, want %v", err, ErrBodyTruncated)
		}
	})

	t.Run("TruncatedFieldData", func(t *testing.T) {
		// Field claims 5 bytes, only 2 present.
		body := []byte{0, 1, 0, 101, 0, 5, 'h', 'i'}
		if _, err := ParseBody(body); err != ErrBodyTruncated {
			t.Errorf("error = %v, want %v", err, ErrBodyTruncated)
		}
	})

	t.Run("MultipleFields", func(t *testing.T) {
		f := New(TranLogin,
			NewField(FieldUserLogin, ObfuscateCredentials([]byte("guest"))),
			NewUint16Field(FieldUserIconID, 145),
			NewStringField(FieldUserName, "guest"),
		)
		body := f.AppendBody(nil)

		fields, err := ParseBody(body)
		if err != nil {
			t.Fatalf("ParseBody() error = %v", err)
		}
		if len(fields) != 3 {
			t.Fatalf("got %d fields, want 3", len(fields))
		}
		if fields[1].Uint16() != 145 {
			t.Errorf("icon = %d, want 145", fields[1].Uint16())
		}
	})
}

func TestNewReply(t *testing.T) {
	req := NewRequest(TranGetUserNameList, 77)
	reply := NewReply(req, UserInfo{ID: 1, Icon: 145, Name: "guest"}.Field())

	if reply.IsReply != 1 {
		t.Error("IsReply not set")
	}
	if reply.Type != TranReply {
		t.Errorf("Type = %d, want %d", reply.Type, TranReply)
	}
	if reply.ID != 77 {
		t.Errorf("ID = %d, want 77 (echoed)", reply.ID)
	}
	if reply.ErrorCode != 0 {
		t.Errorf("ErrorCode = %d, want 0", reply.ErrorCode)
	}
}

func TestNewError(t *testing.T) {
	req := NewRequest(TranDownloadFile, 12)
	reply := NewError(req, "no such file")

	if reply.ErrorCode != 1 {
		t.Errorf("ErrorCode = %d, want 1", reply.ErrorCode)
	}
	if reply.ID != 12 {
		t.Errorf("ID = %d, want 12", reply.ID)
	}
	if reply.FieldText(FieldErrorText) != "no such file" {
		t.Errorf("ErrorText = %q", reply.FieldText(FieldErrorText))
	}
}

func TestGetField(t *testing.T) {
	f := New(TranChatSend,
		NewStringField(FieldData, "hello"),
		NewUint16Field(FieldChatOptions, 1),
	)

	if _, ok := f.GetField(FieldChatID); ok {
		t.Error("GetField found absent field")
	}
	if got := f.FieldText(FieldData); got != "hello" {
		t.Errorf("FieldText = %q", got)
	}
	if got := f.FieldBytes(FieldChatSubject); got != nil {
		t.Errorf("FieldBytes for absent field = %v, want nil", got)
	}
	opts, ok := f.GetField(FieldChatOptions)
	if !ok || opts.Int() != 1 {
		t.Errorf("ChatOptions = %+v", opts)
	}
}

func TestFieldIntWidths(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"OneByte", []byte{7}, 7},
		{"TwoBytes", []byte{0x01, 0x02}, 258},
		{"FourBytes", []byte{0x80, 0x00, 0x00, 0x00}, 0x80000000},
		{"OddWidth", []byte{1, 2, 3}, 0},
		{"Empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewField(FieldRefNum, tt.data)
			if got := f.Int(); got != tt.want {
				t.Errorf("Int() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTranName(t *testing.T) {
	if got := TranName(TranLogin); got != "Login" {
		t.Errorf("TranName(107) = %q", got)
	}
	if got := TranName(0xbeef); got != "0xbeef" {
		t.Errorf("TranName(unknown) = %q", got)
	}
}

func TestObfuscateCredentials(t *testing.T) {
	plain := []byte("guest")
	obfuscated := ObfuscateCredentials(plain)

	want := []byte{0xff - 'g', 0xff - 'u', 0xff - 'e', 0xff - 's', 0xff - 't'}
	if !bytes.Equal(obfuscated, want) {
		t.Errorf("obfuscated = % x, want % x", obfuscated, want)
	}

	// The transform is involutive.
	if !bytes.Equal(ObfuscateCredentials(obfuscated), plain) {
		t.Error("double obfuscation did not restore input")
	}
}
