package events

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/service"
	"github.com/splits-indexer/internal/storage"
)

// maxBlockRange bounds one FilterLogs call; public RPC providers reject
// wider ranges.
const maxBlockRange = 5000

// LogSource is the chain surface the watcher reads. Satisfied by
// *ethclient.Client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Watcher polls the chain for logs of the handled contracts, decodes them
// and hands them to the ingestor. The cursor trails the chain head by the
// configured confirmation lag so shallow reorgs never enter the log.
type Watcher struct {
	source    LogSource
	decoder   *Decoder
	ingestor  *Ingestor
	db        service.TxRunner
	cursor    *storage.CursorRepository
	addresses []common.Address

	pollInterval time.Duration
	lag          uint64
	logger       *logging.Logger
}

// NewWatcher creates a watcher over the drips and repo-driver contracts
func NewWatcher(source LogSource, decoder *Decoder, ingestor *Ingestor, db service.TxRunner, cfg *config.ChainConfig, logger *logging.Logger) *Watcher {
	return &Watcher{
		source:   source,
		decoder:  decoder,
		ingestor: ingestor,
		db:       db,
		cursor:   storage.NewCursorRepository(),
		addresses: []common.Address{
			common.HexToAddress(cfg.DripsContract),
			common.HexToAddress(cfg.RepoDriver),
		},
		pollInterval: cfg.PollInterval,
		lag:          cfg.ConfirmationLag,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.WithField("pollInterval", w.pollInterval.String()).Info("Chain watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Chain watcher stopped")
			return
		case <-ticker.C:
			if err := w.sync(ctx); err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Warn("Chain sync pass failed")
			}
		}
	}
}

// sync ingests one bounded batch of confirmed logs
func (w *Watcher) sync(ctx context.Context) error {
	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		return indexererr.Transport("RPC_BLOCK_NUMBER", err)
	}
	if head < w.lag {
		return nil
	}
	safe := head - w.lag

	var last uint64
	var haveCursor bool
	err = w.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		last, haveCursor, err = w.cursor.Get(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	from := uint64(0)
	if haveCursor {
		if last >= safe {
			return nil
		}
		from = last + 1
	}
	to := safe
	if to-from+1 > maxBlockRange {
		to = from + maxBlockRange - 1
	}

	logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: w.addresses,
		Topics:    [][]common.Hash{w.decoder.Topics()},
	})
	if err != nil {
		return indexererr.Transport("RPC_FILTER_LOGS", err)
	}

	timestamps := make(map[uint64]time.Time)
	for _, log := range logs {
		if log.Removed {
			continue
		}
		blockTime, ok := timestamps[log.BlockNumber]
		if !ok {
			header, err := w.source.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
			if err != nil {
				return indexererr.Transport("RPC_HEADER", err)
			}
			blockTime = time.Unix(int64(header.Time), 0).UTC()
			timestamps[log.BlockNumber] = blockTime
		}

		ev, err := w.decoder.Decode(log, blockTime)
		if err != nil {
			// A log we cannot decode is recorded and left behind, it can
			// never decode differently on a retry.
			w.logger.WithError(err).WithFields(map[string]interface{}{
				"txHash":   log.TxHash.Hex(),
				"logIndex": log.Index,
			}).Warn("Dropping undecodable log")
			continue
		}
		if ev == nil {
			continue
		}
		if err := w.ingestor.Ingest(ctx, ev); err != nil {
			return err
		}
	}

	if err := w.db.InTx(ctx, func(tx pgx.Tx) error {
		return w.cursor.Set(ctx, tx, to)
	}); err != nil {
		return err
	}
	if len(logs) > 0 {
		w.logger.WithFields(map[string]interface{}{
			"fromBlock": from,
			"toBlock":   to,
			"logs":      len(logs),
		}).Info("Ingested log batch")
	}
	return nil
}
