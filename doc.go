// Package douyin implements a client for the Douyin live webcast push
// service. It resolves a live room from its public web identifier, opens the
// signed websocket push connection, and turns the compressed multiplexed
// binary stream into typed webcast events: chat lines, gifts, likes, viewer
// entrances, room statistics and lifecycle signals.
//
// A Session owns the push connection and two background tasks: a heartbeat
// loop keeping the connection alive and a receive loop that acknowledges and
// dispatches inbound pushes. Malformed frames and failing handlers are logged
// and dropped without ending the session; the session ends when the room
// does, when the transport closes, or when Close is called.
package douyin
