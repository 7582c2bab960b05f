// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

// frame is one protocol message. Every frame is a map; the keys present
// determine its kind:
//
//	{auth}                             handshake request and reply
//	{doc, open:true, create, type}     open request
//	{doc, open:true, v, snapshot}      open reply
//	{doc, open:false[, error]}         close request, close reply, open failure
//	{doc, v, op, src, seq}             op submission
//	{doc, v}                           op acknowledgement
//	{doc, v, op, meta}                 remote op
//	{doc, error}                       op rejection
//	{doc, shout}                       broadcast message
type frame map[string]any

func (f frame) str(key string) (string, bool) {
	value, ok := f[key].(string)
	return value, ok
}

func (f frame) integer(key string) (int, bool) {
	return asInt(f[key])
}

func (f frame) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f frame) errorMessage() string {
	switch message := f["error"].(type) {
	case string:
		return message
	case nil:
		return "unknown error"
	default:
		if object, ok := message.(map[string]any); ok {
			if text, ok := object["message"].(string); ok {
				return text
			}
		}
		return "unknown error"
	}
}
