package encryption

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	iv := bytes.Repeat([]byte{9}, 16)
	require.NoError(t, writeHeader(&buf, 1<<20, iv))
	assert.Equal(t, HeaderSize, buf.Len())
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x00}, buf.Bytes()[:4])

	chunkSize, gotIV, err := readHeader(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 1<<20, chunkSize)
	assert.Equal(t, iv, gotIV)

	_, _, err = readHeader(bytes.NewReader([]byte{0, 0, 0}))
	require.ErrorIs(t, err, ErrPadding)
}

func TestRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, writeRecord(&buf, []byte("abc")))
	require.NoError(t, writeRecord(&buf, nil))
	require.NoError(t, writeRecord(&buf, []byte("defgh")))

	var (
		record []byte
		got    []string
		err    error
	)

	reader := bytes.NewReader(buf.Bytes())

	for {
		record, err = readRecord(reader, record)
		if err == io.EOF { //nolint:errorlint // readRecord returns io.EOF unwrapped
			break
		}

		require.NoError(t, err)

		got = append(got, string(record))
	}

	assert.Equal(t, []string{"abc", "", "defgh"}, got)
}

func TestReadRecordRejectsDamage(t *testing.T) {
	t.Parallel()

	huge := binary.BigEndian.AppendUint32(nil, maxRecordSize+1)

	_, err := readRecord(bytes.NewReader(huge), nil)
	require.ErrorIs(t, err, ErrPadding)

	short := append(binary.BigEndian.AppendUint32(nil, 10), 1, 2, 3)

	_, err = readRecord(bytes.NewReader(short), nil)
	require.ErrorIs(t, err, ErrPadding)

	_, err = readRecord(bytes.NewReader([]byte{0, 0}), nil)
	require.ErrorIs(t, err, ErrPadding)
}

func TestContainerPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a/b.txt.lock", ContainerPath("a/b.txt"))

	plain, err := PlaintextPath("a/b.txt.lock")
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", plain)

	_, err = PlaintextPath("a/b.txt")
	require.ErrorIs(t, err, ErrNotContainer)

	_, err = PlaintextPath(".lock")
	require.ErrorIs(t, err, ErrNotContainer)

	require.NoError(t, ValidateChunkSize(1))
	require.NoError(t, ValidateChunkSize(MaxChunkSize))
	require.ErrorIs(t, ValidateChunkSize(0), ErrInvalidChunkSize)
	require.ErrorIs(t, ValidateChunkSize(MaxChunkSize+1), ErrInvalidChunkSize)
}
