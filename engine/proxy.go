package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgproto3"
)

// Proxy serves the engine over the Postgres wire protocol. Clients connect
// with any Postgres driver or psql and query registered tables.
type Proxy struct {
	engine   *Engine
	listener net.Listener
	logger   *slog.Logger
}

func NewProxy(engine *Engine, addr string, logger *slog.Logger) (*Proxy, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("creating listener: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{engine: engine, listener: listener, logger: logger}, nil
}

func (p *Proxy) Addr() net.Addr {
	return p.listener.Addr()
}

// Start accepts connections until ctx is cancelled.
func (p *Proxy) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.listener.Close()
	}()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				p.logger.Warn("accept failed", "error", err)
				continue
			}
		}
		go p.handleConnection(ctx, conn)
	}
}

func (p *Proxy) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	backend := pgproto3.NewBackend(conn, conn)
	if _, err := backend.ReceiveStartupMessage(); err != nil {
		return
	}
	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}
		switch msg := msg.(type) {
		case *pgproto3.Query:
			if err := p.handleQuery(ctx, backend, msg.String); err != nil {
				p.sendError(backend, err)
			}
		case *pgproto3.Terminate:
			return
		}
	}
}

func (p *Proxy) handleQuery(ctx context.Context, backend *pgproto3.Backend, query string) error {
	rows, err := p.engine.Exec(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	if err := sendRowDescription(backend, columnTypes); err != nil {
		return err
	}

	values := make([]any, len(columnTypes))
	scanArgs := make([]any, len(columnTypes))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return err
		}
		dataRow := &pgproto3.DataRow{Values: make([][]byte, len(columnTypes))}
		for i, val := range values {
			if val == nil {
				dataRow.Values[i] = nil
				continue
			}
			dataRow.Values[i] = []byte(fmt.Sprintf("%v", val))
		}
		backend.Send(dataRow)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("SELECT %d", count))})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	return backend.Flush()
}

func sendRowDescription(backend *pgproto3.Backend, columns []*sql.ColumnType) error {
	fields := make([]pgproto3.FieldDescription, len(columns))
	for i, col := range columns {
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(col.Name()),
			DataTypeOID:  typeOID(col.DatabaseTypeName()),
			DataTypeSize: -1,
			TypeModifier: -1,
		}
	}
	backend.Send(&pgproto3.RowDescription{Fields: fields})
	return backend.Flush()
}

func (p *Proxy) sendError(backend *pgproto3.Backend, err error) {
	backend.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "XX000",
		Message:  err.Error(),
	})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	_ = backend.Flush()
}

func typeOID(databaseTypeName string) uint32 {
	switch databaseTypeName {
	case "BOOL":
		return 16
	case "INT8", "BIGINT":
		return 20
	case "INT4", "INTEGER":
		return 23
	case "FLOAT4", "REAL":
		return 700
	case "FLOAT8", "DOUBLE":
		return 701
	case "DATE":
		return 1082
	case "TIMESTAMP":
		return 1114
	default:
		return 25 // text
	}
}
