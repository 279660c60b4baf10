package server

import (
	"net"
	"time"

	"github.com/bidforge/bidforge/metrics"
)

type monitorableListener struct {
	*net.TCPListener
	metrics metrics.MetricsEngine
}

type monitorableConnection struct {
	net.Conn
	metrics metrics.MetricsEngine
}

func (l *monitorableConnection) Close() error {
	l.metrics.RecordConnectionClose()
	return l.Conn.Close()
}

func (ln *monitorableListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}

	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	ln.metrics.RecordConnectionOpen()
	return &monitorableConnection{
		tc,
		ln.metrics,
	}, nil
}
