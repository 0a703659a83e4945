package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectURLColumnPicksDensestColumn(t *testing.T) {
	t.Parallel()

	columns := []string{"name", "website", "notes"}
	rows := []Row{
		{"name": "Acme", "website": "https://acme.example", "notes": "call back"},
		{"name": "Globex", "website": "www.globex.example", "notes": ""},
		{"name": "Initech", "website": "initech.example", "notes": "see acme.example too"},
	}

	col, err := DetectURLColumn(columns, rows, DefaultSampleRows)
	require.NoError(t, err)
	require.Equal(t, "website", col)
}

func TestDetectURLColumnTieBreaksToFirstDeclared(t *testing.T) {
	t.Parallel()

	columns := []string{"site_a", "site_b"}
	rows := []Row{
		{"site_a": "https://a.example", "site_b": "https://b.example"},
		{"site_a": "https://a2.example", "site_b": "https://b2.example"},
	}

	col, err := DetectURLColumn(columns, rows, DefaultSampleRows)
	require.NoError(t, err)
	require.Equal(t, "site_a", col)
}

func TestDetectURLColumnIsDeterministic(t *testing.T) {
	t.Parallel()

	columns := []string{"id", "homepage"}
	rows := []Row{
		{"id": "1", "homepage": "https://one.example"},
		{"id": "2", "homepage": "two.example"},
	}

	first, err := DetectURLColumn(columns, rows, DefaultSampleRows)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := DetectURLColumn(columns, rows, DefaultSampleRows)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestDetectURLColumnHonorsSampleWindow(t *testing.T) {
	t.Parallel()

	columns := []string{"a", "b"}
	rows := []Row{
		{"a": "https://a.example", "b": "plain"},
		{"a": "https://a.example", "b": "plain"},
		// Only rows beyond the sample window favor b.
		{"a": "", "b": "https://b.example"},
		{"a": "", "b": "https://b.example"},
		{"a": "", "b": "https://b.example"},
	}

	col, err := DetectURLColumn(columns, rows, 2)
	require.NoError(t, err)
	require.Equal(t, "a", col)
}

func TestDetectURLColumnFailsWithoutCandidates(t *testing.T) {
	t.Parallel()

	columns := []string{"name", "phone"}
	rows := []Row{
		{"name": "Acme", "phone": "555-0100"},
		{"name": "Globex", "phone": "555-0101"},
	}

	_, err := DetectURLColumn(columns, rows, DefaultSampleRows)
	require.ErrorIs(t, err, ErrNoURLColumn)
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"empty", "", "", false},
		{"whitespace", "   \t", "", false},
		{"bare host", "acme.example", "https://acme.example", true},
		{"keeps http", "http://acme.example", "http://acme.example", true},
		{"keeps https", "https://acme.example", "https://acme.example", true},
		{"trims", "  acme.example  ", "https://acme.example", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NormalizeAddress(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}
