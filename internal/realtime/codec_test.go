package realtime

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptRoundTrip(t *testing.T) {
	keys := map[string][]byte{
		"aes128": []byte("0123456789abcdef"),
		"aes256": []byte("0123456789abcdef0123456789abcdef"),
	}
	iv := []byte("abcdefghijklmnop")

	for name, key := range keys {
		for _, plain := range []string{"x", "exactly16bytes!!", "hts01^5012345601^0000012345^^02", strings.Repeat("가", 40)} {
			t.Run(name, func(t *testing.T) {
				got, err := Decrypt(encrypt(t, plain, key, iv), key, iv)
				require.NoError(t, err)
				assert.Equal(t, plain, got)
			})
		}
	}
}

func TestDecryptErrors(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("abcdefghijklmnop")

	tests := []struct {
		name    string
		payload string
		key     []byte
		iv      []byte
	}{
		{"not base64", "%%%", key, iv},
		{"bad key size", encrypt(t, "x", key, iv), []byte("short"), iv},
		{"bad iv size", encrypt(t, "x", key, iv), key, []byte("short")},
		{"partial block", base64.StdEncoding.EncodeToString([]byte("12345")), key, iv},
		{"empty", "", key, iv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.payload, tt.key, tt.iv)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestPKCS7Unpad(t *testing.T) {
	got, err := pkcs7Unpad([]byte("abc\x03\x03\x03"), 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	_, err = pkcs7Unpad([]byte("abc\x01\x03\x03"), 16)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = pkcs7Unpad([]byte("abc\x00"), 16)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestKeychainExecutionKeyIsShared(t *testing.T) {
	k := make(keychain)
	k.store(TR{TRExecution, "hts01"}, "key", "iv")
	k.store(TR{TRStockPrice, "005930"}, "pkey", "piv")

	_, ok := k[TR{TRExecution, ""}]
	assert.True(t, ok)

	ck, err := k.lookup(TRExecution)
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), ck.key)

	ck, err = k.lookup(TRStockPrice)
	require.NoError(t, err)
	assert.Equal(t, []byte("piv"), ck.iv)

	_, err = k.lookup(TROverseasExecution)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestKeychainAmbiguousKeyIsMiss(t *testing.T) {
	k := make(keychain)
	k.store(TR{TRStockPrice, "005930"}, "key-a", "iv-a")
	k.store(TR{TRStockPrice, "000660"}, "key-a", "iv-a")

	// Identical keys under one id are interchangeable.
	ck, err := k.lookup(TRStockPrice)
	require.NoError(t, err)
	assert.Equal(t, []byte("key-a"), ck.key)

	k.store(TR{TRStockPrice, "035420"}, "key-b", "iv-b")
	for range 20 {
		_, err = k.lookup(TRStockPrice)
		require.ErrorIs(t, err, ErrAmbiguousKey)
	}
}

func TestEncodeRequest(t *testing.T) {
	data, err := encodeRequest("approval", trTypeSubscribe, TR{TRStockPrice, "005930"})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"header": {"approval_key": "approval", "custtype": "P", "tr_type": "1", "content-type": "utf-8"},
		"body": {"input": {"tr_id": "H0STCNT0", "tr_key": "005930"}}
	}`, string(data))
}

func TestDecodeControl(t *testing.T) {
	f, err := decodeControl([]byte(ackWithKey(TR{TRExecution, "hts01"}, "k", "v")))
	require.NoError(t, err)
	assert.Equal(t, TR{TRExecution, "hts01"}, f.tr())
	require.NotNil(t, f.Body)
	assert.Equal(t, msgSubscribed, f.Body.MsgCd)
	assert.Equal(t, "k", f.Body.Output.Key)
	assert.Equal(t, "v", f.Body.Output.IV)

	f, err = decodeControl([]byte(`{"header":{"tr_id":"PINGPONG","datetime":"20260115093000"}}`))
	require.NoError(t, err)
	assert.Nil(t, f.Body)

	_, err = decodeControl([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseEventFrame(t *testing.T) {
	f, err := parseEventFrame("1|H0STCNI0|001|abc|def")
	require.NoError(t, err)
	assert.True(t, f.Encrypted)
	assert.Equal(t, TRExecution, f.TrID)
	assert.Equal(t, "001", f.Count)
	assert.Equal(t, "abc|def", f.Payload)

	_, err = parseEventFrame("0|H0STCNT0")
	assert.ErrorIs(t, err, ErrMalformed)

	assert.True(t, isEventFrame([]byte("0|x")))
	assert.True(t, isEventFrame([]byte("1|x")))
	assert.False(t, isEventFrame([]byte(`{"header":{}}`)))
	assert.False(t, isEventFrame(nil))
}

func TestDefaultRegistryFieldCounts(t *testing.T) {
	want := map[string]int{
		TRStockPrice:         46,
		TRStockOrderbook:     59,
		TROverseasPrice:      26,
		TROverseasOrderbook:  17,
		TRExecution:          23,
		TRExecutionVirtual:   23,
		TROverseasExecution:  25,
		TROverseasExecutionV: 25,
	}

	r := DefaultRegistry()
	assert.Len(t, r.IDs(), len(want))
	for id, n := range want {
		s, ok := r.Lookup(id)
		require.True(t, ok, id)
		assert.Len(t, s.Fields, n, id)

		seen := make(map[string]bool)
		for _, f := range s.Fields {
			assert.False(t, seen[f.Name], "%s duplicates %s", id, f.Name)
			seen[f.Name] = true
		}
		assert.True(t, seen[s.KeyField], "%s key field %s", id, s.KeyField)
	}
}

func TestDecodeStockOrderbook(t *testing.T) {
	set := map[string]string{"MKSC_SHRN_ISCD": "005930", "BSOP_HOUR": "090000", "TOTAL_ASKP_RSQN": "1000", "ANTC_CNPR": "70900"}
	set["ASKP1"], set["ASKP_RSQN1"] = "71000", "15"
	set["BIDP10"], set["BIDP_RSQN10"] = "70100", "7"

	out, err := DefaultRegistry().Decode(TRStockOrderbook, record(t, TRStockOrderbook, set), false)
	require.NoError(t, err)
	require.Len(t, out, 1)

	book := out[0].(*StockOrderbook)
	assert.Equal(t, "005930", book.Metadata().Key)
	assert.Equal(t, TRStockOrderbook, book.Metadata().TRID)
	assert.Nil(t, book.Metadata().Raw)
	assert.Len(t, book.Asks, 10)
	assert.Equal(t, "71000", book.Asks[0].Price.String())
	assert.Equal(t, int64(15), book.Asks[0].Quantity)
	assert.Equal(t, "70100", book.Bids[9].Price.String())
	assert.Equal(t, int64(7), book.Bids[9].Quantity)
	assert.Equal(t, int64(1000), book.TotalAskQuantity)
	assert.Equal(t, "70900", book.ExpectedPrice.String())
}

func TestDecodeOverseasPrice(t *testing.T) {
	payload := record(t, TROverseasPrice, map[string]string{
		"RSYM": "DNASAAPL",
		"SYMB": "AAPL",
		"XHMS": "093000",
		"LAST": "227.5200",
		"EVOL": "100",
	})

	out, err := DefaultRegistry().Decode(TROverseasPrice, payload, true)
	require.NoError(t, err)

	price := out[0].(*StockPrice)
	assert.Equal(t, "DNASAAPL", price.Metadata().Key)
	assert.Equal(t, "AAPL", price.Symbol())
	assert.Equal(t, "NASD", price.Market())
	assert.Equal(t, "227.52", price.Price.String())
	assert.Len(t, price.Metadata().Raw, 26)
}

func TestDecodeErrors(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Decode("H0XXXXX0", "a^b", false)
	assert.ErrorIs(t, err, ErrNoDecoder)

	_, err = r.Decode(TRStockPrice, "005930^093000", false)
	assert.ErrorIs(t, err, ErrFieldCount)

	bad := record(t, TRStockPrice, map[string]string{"MKSC_SHRN_ISCD": "005930", "STCK_PRPR": "abc"})
	_, err = r.Decode(TRStockPrice, bad, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STCK_PRPR")
}

func TestCustomSchema(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	type custom struct {
		Meta
		Name string
	}
	r.Register(Schema{
		Fields:   []Field{{Name: "NAME"}, {Name: "FLAG", Transform: Flag}},
		KeyField: "NAME",
		Build: func(rec Record) Response {
			return &custom{Name: rec.String("NAME")}
		},
	}, "XTEST000")

	out, err := r.Decode("XTEST000", "a^Y^b^N", false)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].Metadata().Key)
	assert.Equal(t, fixed, out[0].Metadata().ReceivedAt)
}

func TestTransforms(t *testing.T) {
	v, err := Clock("153012")
	require.NoError(t, err)
	assert.Equal(t, "15:30:12", v.(TimeOfDay).String())

	_, err = Clock("256000")
	assert.Error(t, err)
	_, err = Clock("12")
	assert.Error(t, err)

	v, err = Int("-0012")
	require.NoError(t, err)
	assert.Equal(t, int64(-12), v)

	v, err = Decimal("")
	require.NoError(t, err)
	assert.Equal(t, "0", v.(interface{ String() string }).String())

	_, err = Flag("X")
	assert.Error(t, err)
}

func TestOverseasKey(t *testing.T) {
	key, err := OverseasKey("nasd", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "DNASAAPL", key)

	market, symbol, ok := ParseOverseasKey("DNYSIBM")
	require.True(t, ok)
	assert.Equal(t, "NYSE", market)
	assert.Equal(t, "IBM", symbol)

	_, err = OverseasKey("LSE", "VOD")
	assert.Error(t, err)

	_, _, ok = ParseOverseasKey("DXX")
	assert.False(t, ok)
}

func TestResponsesSerialize(t *testing.T) {
	out, err := DefaultRegistry().Decode(TRStockPrice, priceRecord(t, "005930", "71000"), false)
	require.NoError(t, err)

	data, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Code":"005930"`)
}
