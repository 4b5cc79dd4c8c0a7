package cos

import jsoniter "github.com/json-iterator/go"

// json is aistore's conventional jsoniter configuration (ConfigCompatibleWithStandardLibrary)
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on error - used only for types the caller has already
// validated (e.g. well-formed internal messages), matching the
// cos.MustMarshal idiom used throughout api/*.go request construction.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func UnmarshalInto(data []byte, v any) error { return json.Unmarshal(data, v) }
