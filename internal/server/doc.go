// Package server implements the listener orchestration using Echo framework.
//
// One Group per protocol (plain, tls): primary listener on the configured
// address plus an automatic loopback fallback listener when the address is
// neither wildcard nor loopback. Both listeners feed the same Echo handler
// and the same relay hub — two ingress points into one logical group.
// Routes: / (WebSocket upgrade), /healthz, /metrics.
package server
