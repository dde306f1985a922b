// Package transport owns exactly one bidirectional framed connection per
// peer: dial/accept, reconnect with a queued backlog, heartbeat, and an
// outbound send queue that is not capped but reports a backpressure
// warning once it reaches a configured depth.
//
// Key concepts:
//   - Transport: the interface a peer-facing connection implements
//     (Connect/Disconnect/Send plus OnMessage/OnDisconnect/OnError/OnReconnecting
//     subscriptions).
//   - State: the connection lifecycle (Disconnected/Connecting/Connected/Reconnecting).
//   - WebSocketTransport: the production implementation, framed as WebSocket
//     text frames.
//   - MemTransport: an in-process pair for tests, wired through Go channels
//     instead of a real socket.
package transport
