package httpmiddleware

import "github.com/go-faster/jx"

func errorBody(code int, message string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	return e.Bytes()
}
