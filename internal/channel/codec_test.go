package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

func TestEncodeUsesWireFieldNames(t *testing.T) {
	t.Parallel()

	data, err := Encode(notice.NoticeEvent{NoticeID: "2025000450", Region: "서울", Title: "개포", URL: "https://u"})
	require.NoError(t, err)
	require.JSONEq(t, `{"notice_id":"2025000450","region":"서울","title":"개포","url":"https://u"}`, string(data))
	require.Contains(t, string(data), "서울")
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("not json"))
	require.Error(t, err)
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))

	_, err = Decode([]byte{0xff, 0xfe})
	require.Error(t, err)

	evt, err := Decode([]byte(`{"notice_id":"1","region":"r","title":"t","url":"u","extra":true}`))
	require.NoError(t, err)
	require.Equal(t, "1", evt.NoticeID)
}
