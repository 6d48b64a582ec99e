package geocode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "vicinity suffix",
			input: "서울특별시 강남구 개포동 12  일원",
			want:  []string{"서울특별시 강남구 개포동 12 일원", "서울특별시 강남구 개포동 12"},
		},
		{
			name:  "parentheses and district suffix",
			input: " 경기도 하남시 교산동 (교산지구 A-1) 지구내 ",
			want: []string{
				"경기도 하남시 교산동 (교산지구 A-1) 지구내",
				"경기도 하남시 교산동 지구내",
				"경기도 하남시 교산동 (교산지구 A-1)",
			},
		},
		{
			name:  "other lots",
			input: "인천광역시 서구 원당동 1012 외 3필지",
			want:  []string{"인천광역시 서구 원당동 1012 외 3필지", "인천광역시 서구 원당동 1012"},
		},
		{
			name:  "lot vicinity and approximately",
			input: "부산광역시 기장군 일광읍 123번지 일원",
			want:  []string{"부산광역시 기장군 일광읍 123번지 일원", "부산광역시 기장군 일광읍 123"},
		},
		{
			name:  "standalone approximately",
			input: "세종특별자치시 연기면 일대",
			want:  []string{"세종특별자치시 연기면 일대", "세종특별자치시 연기면"},
		},
		{
			name:  "suffix before punctuation",
			input: "서울특별시 강남구 개포동 12-3번지 일원, 13",
			want:  []string{"서울특별시 강남구 개포동 12-3번지 일원, 13", "서울특별시 강남구 개포동 12-3, 13"},
		},
		{
			name:  "suffix inside parentheses",
			input: "경기도 화성시 (동탄 A-7 일원)",
			want:  []string{"경기도 화성시 (동탄 A-7 일원)", "경기도 화성시", "경기도 화성시 (동탄 A-7 )"},
		},
		{
			name:  "suffix text inside a place name",
			input: "서울특별시 강남구 일원동 615",
			want:  []string{"서울특별시 강남구 일원동 615"},
		},
		{
			name:  "already clean",
			input: "서울특별시 송파구 올림픽로 300",
			want:  []string{"서울특별시 송파구 올림픽로 300"},
		},
		{
			name:  "empty",
			input: "   ",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, NormalizeCandidates(tt.input))
		})
	}
}

func TestNormalizeCandidatesNoDuplicates(t *testing.T) {
	t.Parallel()

	got := NormalizeCandidates("(가칭) 일원")
	seen := map[string]bool{}
	for _, c := range got {
		require.NotEmpty(t, c)
		require.False(t, seen[c], "duplicate candidate %q", c)
		seen[c] = true
	}
	require.Equal(t, "(가칭) 일원", got[0])
}

func TestTidyAndDropParentheses(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", Tidy("  a\t b\n\nc "))
	require.Equal(t, "a c", DropParentheses("a (b) c"))
	require.Equal(t, "a c", DropParentheses("a (b)(d) c"))
}
