// Package protocol implements the JSON message format spoken between the
// bridge server and a browser page driving a provisioning session.
//
// Every WebSocket text message is one JSON object with a "type" field.
//
// # Commands (browser → bridge)
//
//	{"type":"scan","id":"1"}
//	{"type":"connect","id":"2","ssid":"Home","password":"hunter22"}
//	{"type":"retry_scan"} {"type":"retry_connect",...} {"type":"resume"}
//	{"type":"cancel"} {"type":"ack"} {"type":"snapshot"}
//
// Commands map one-to-one onto provision.Workflow operations. Passwords are
// only ever held in the decoded Command and never appear in String output.
//
// # Events (bridge → browser)
//
//	{"type":"hello","session":"…","state":"idle"}
//	{"type":"state","state":"awaiting_selection","previous":"scanning","networks":[…]}
//	{"type":"state","state":"verifying","previous":"verifying","attempt":2,"next_delay_ms":5000}
//	{"type":"result","id":"2","command":"connect","kind":"unreachable","error":"…"}
//	{"type":"error","kind":"bad_request","error":"unknown command \"fly\""}
//
// Events carry states and error kinds as stable identifiers; the page owns
// every user-facing string.
//
// # Thread Safety
//
// All parsing and construction functions are stateless and safe for concurrent use.
package protocol
