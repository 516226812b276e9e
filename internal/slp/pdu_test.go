package slp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/slp"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  slp.Message
	}{
		{
			name: "SrvRqst",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvRqst, XID: 1, LanguageTag: "en"},
				SrvRqst: &slp.SrvRqstBody{
					PRList: "", ServiceType: "service:foo", ScopeList: "default", Predicate: "", SPIStr: "",
				},
			},
		},
		{
			name: "SrvRply with URL entries",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvRply, XID: 2, LanguageTag: "en"},
				SrvRply: &slp.SrvRplyBody{
					ErrorCode: slp.ErrNone,
					URLs: []slp.URLEntry{
						{Lifetime: 3600, URL: "service:foo://host1/"},
						{Lifetime: 60, URL: "service:foo://host2/"},
					},
				},
			},
		},
		{
			name: "SrvReg",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvReg, XID: 3, Flags: slp.FlagFresh, LanguageTag: "en"},
				SrvReg: &slp.SrvRegBody{
					URL:         slp.URLEntry{Lifetime: 3600, URL: "service:x://host/1"},
					ServiceType: "service:x",
					ScopeList:   "a,b",
					AttrList:    "(color=red),(size=10)",
				},
			},
		},
		{
			name: "SrvDeReg",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvDeReg, XID: 4, LanguageTag: "en"},
				SrvDeReg: &slp.SrvDeRegBody{
					ScopeList: "a", URL: slp.URLEntry{Lifetime: 0, URL: "service:x://host/1"}, TagList: "",
				},
			},
		},
		{
			name: "SrvAck",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvAck, XID: 5, LanguageTag: "en"},
				SrvAck: &slp.SrvAckBody{ErrorCode: slp.ErrInvalidUpdate},
			},
		},
		{
			name: "AttrRqst",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncAttrRqst, XID: 6, LanguageTag: "en"},
				AttrRqst: &slp.AttrRqstBody{
					PRList: "", URLOrType: "service:x://host/1", ScopeList: "a", TagList: "color", SPIStr: "",
				},
			},
		},
		{
			name: "AttrRply",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncAttrRply, XID: 7, LanguageTag: "en"},
				AttrRply: &slp.AttrRplyBody{ErrorCode: slp.ErrNone, AttrList: "(color=red)"},
			},
		},
		{
			name: "DAAdvert",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncDAAdvert, XID: 8, LanguageTag: "en"},
				DAAdvert: &slp.DAAdvertBody{
					ErrorCode: slp.ErrNone, BootTime: 1000,
					URL: "service:directory-agent://10.0.0.1", ScopeList: "default",
					AttrList: "", SPIList: "",
				},
			},
		},
		{
			name: "SrvTypeRqst",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvTypeRqst, XID: 9, LanguageTag: "en"},
				SrvTypeRqst: &slp.SrvTypeRqstBody{
					PRList: "", NamingAuthority: "", ScopeList: "default",
				},
			},
		},
		{
			name: "SrvTypeRply",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvTypeRply, XID: 10, LanguageTag: "en"},
				SrvTypeRply: &slp.SrvTypeRplyBody{ErrorCode: slp.ErrNone, SrvTypeList: "service:x,service:y"},
			},
		},
		{
			name: "SAAdvert",
			msg: slp.Message{
				Header: slp.Header{Version: slp.Version, Function: slp.FuncSAAdvert, XID: 11, LanguageTag: "en"},
				SAAdvert: &slp.SAAdvertBody{
					URL: "service:x://host/1", ScopeList: "default", AttrList: "",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire, err := slp.Encode(tt.msg)
			require.NoError(t, err)

			got, err := slp.Decode(wire)
			require.NoError(t, err)

			require.Equal(t, tt.msg.Header.Function, got.Header.Function)
			require.Equal(t, tt.msg.Header.XID, got.Header.XID)
			require.EqualValues(t, len(wire), got.Header.Length)

			switch tt.msg.Header.Function {
			case slp.FuncSrvRqst:
				require.Equal(t, *tt.msg.SrvRqst, *got.SrvRqst)
			case slp.FuncSrvRply:
				require.Equal(t, *tt.msg.SrvRply, *got.SrvRply)
			case slp.FuncSrvReg:
				require.Equal(t, *tt.msg.SrvReg, *got.SrvReg)
			case slp.FuncSrvDeReg:
				require.Equal(t, *tt.msg.SrvDeReg, *got.SrvDeReg)
			case slp.FuncSrvAck:
				require.Equal(t, *tt.msg.SrvAck, *got.SrvAck)
			case slp.FuncAttrRqst:
				require.Equal(t, *tt.msg.AttrRqst, *got.AttrRqst)
			case slp.FuncAttrRply:
				require.Equal(t, *tt.msg.AttrRply, *got.AttrRply)
			case slp.FuncDAAdvert:
				require.Equal(t, *tt.msg.DAAdvert, *got.DAAdvert)
			case slp.FuncSrvTypeRqst:
				require.Equal(t, *tt.msg.SrvTypeRqst, *got.SrvTypeRqst)
			case slp.FuncSrvTypeRply:
				require.Equal(t, *tt.msg.SrvTypeRply, *got.SrvTypeRply)
			case slp.FuncSAAdvert:
				require.Equal(t, *tt.msg.SAAdvert, *got.SAAdvert)
			}
		})
	}
}

func TestEncodeLengthMonotonicity(t *testing.T) {
	t.Parallel()

	msg := slp.Message{
		Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvAck, XID: 1, LanguageTag: "en"},
		SrvAck: &slp.SrvAckBody{ErrorCode: slp.ErrNone},
	}
	wire, err := slp.Encode(msg)
	require.NoError(t, err)

	decoded, err := slp.Decode(wire)
	require.NoError(t, err)
	require.EqualValues(t, len(wire), decoded.Header.Length)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	t.Parallel()

	msg := slp.Message{
		Header: slp.Header{Version: 1, Function: slp.FuncSrvAck, XID: 1, LanguageTag: "en"},
		SrvAck: &slp.SrvAckBody{ErrorCode: slp.ErrNone},
	}
	wire, err := slp.Encode(msg)
	require.NoError(t, err)

	_, err = slp.Decode(wire)
	require.ErrorIs(t, err, slp.ErrVersionMismatch)
}
