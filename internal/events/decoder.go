package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/splits-indexer/internal/indexererr"
)

const eventsABIJSON = `[
	{"type":"event","name":"AccountMetadataEmitted","inputs":[
		{"name":"accountId","type":"uint256","indexed":true},
		{"name":"key","type":"bytes32","indexed":true},
		{"name":"value","type":"bytes","indexed":false}]},
	{"type":"event","name":"SplitsSet","inputs":[
		{"name":"accountId","type":"uint256","indexed":true},
		{"name":"receiversHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"OwnerUpdateRequested","inputs":[
		{"name":"accountId","type":"uint256","indexed":true},
		{"name":"forge","type":"uint8","indexed":false},
		{"name":"name","type":"bytes","indexed":false}]},
	{"type":"event","name":"OwnerUpdated","inputs":[
		{"name":"accountId","type":"uint256","indexed":true},
		{"name":"owner","type":"address","indexed":false}]},
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"event","name":"DeadlineCreated","inputs":[
		{"name":"accountId","type":"uint256","indexed":true},
		{"name":"receiver","type":"uint256","indexed":false},
		{"name":"project","type":"uint256","indexed":false},
		{"name":"refund","type":"uint256","indexed":false},
		{"name":"deadline","type":"uint256","indexed":false}]}
]`

var nameToSignature = map[string]string{
	"AccountMetadataEmitted": SigAccountMetadataEmitted,
	"SplitsSet":              SigSplitsSet,
	"OwnerUpdateRequested":   SigOwnerUpdateRequested,
	"OwnerUpdated":           SigOwnerUpdated,
	"Transfer":               SigTransfer,
	"DeadlineCreated":        SigDeadlineCreated,
}

// Decoder turns raw chain logs into decoded events
type Decoder struct {
	abi     abi.ABI
	byTopic map[common.Hash]string // topic0 -> event name
}

// NewDecoder creates a decoder for the handled event set
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(eventsABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse events ABI: %w", err)
	}
	byTopic := make(map[common.Hash]string, len(parsed.Events))
	for name, ev := range parsed.Events {
		byTopic[ev.ID] = name
	}
	return &Decoder{abi: parsed, byTopic: byTopic}, nil
}

// Topics returns the topic0 hashes of every handled event, for log filters
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for topic := range d.byTopic {
		out = append(out, topic)
	}
	return out
}

// Decode converts a raw log into an event. Returns (nil, nil) for logs
// outside the handled signature set.
func (d *Decoder) Decode(log types.Log, blockTime time.Time) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}
	name, ok := d.byTopic[log.Topics[0]]
	if !ok {
		return nil, nil
	}

	ev := &Event{
		Signature:       nameToSignature[name],
		TransactionHash: log.TxHash.Hex(),
		LogIndex:        uint32(log.Index),
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  blockTime,
	}

	data := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := d.abi.UnpackIntoMap(data, name, log.Data); err != nil {
			return nil, indexererr.Validation("LOG_MALFORMED", "failed to unpack %s log data", name).WithCause(err)
		}
	}

	var args interface{}
	switch name {
	case "AccountMetadataEmitted":
		if len(log.Topics) < 3 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		ev.AccountID = topicBig(log.Topics[1]).String()
		value, _ := data["value"].([]byte)
		args = AccountMetadataArgs{
			Key:   trimmedBytes32(log.Topics[2]),
			Value: string(value),
		}

	case "SplitsSet":
		if len(log.Topics) < 2 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		ev.AccountID = topicBig(log.Topics[1]).String()
		hash, _ := data["receiversHash"].([32]byte)
		args = SplitsSetArgs{ReceiversHash: common.Hash(hash).Hex()}

	case "OwnerUpdateRequested":
		if len(log.Topics) < 2 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		ev.AccountID = topicBig(log.Topics[1]).String()
		forge, _ := data["forge"].(uint8)
		nameBytes, _ := data["name"].([]byte)
		args = OwnerUpdateRequestedArgs{Forge: forge, Name: string(nameBytes)}

	case "OwnerUpdated":
		if len(log.Topics) < 2 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		ev.AccountID = topicBig(log.Topics[1]).String()
		owner, _ := data["owner"].(common.Address)
		args = OwnerUpdatedArgs{Owner: owner.Hex()}

	case "Transfer":
		if len(log.Topics) < 4 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		tokenID := topicBig(log.Topics[3])
		ev.AccountID = tokenID.String()
		args = TransferArgs{
			From:    common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:      common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			TokenID: tokenID.String(),
		}

	case "DeadlineCreated":
		if len(log.Topics) < 2 {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing indexed topics", name)
		}
		ev.AccountID = topicBig(log.Topics[1]).String()
		receiver, _ := data["receiver"].(*big.Int)
		project, _ := data["project"].(*big.Int)
		refund, _ := data["refund"].(*big.Int)
		deadline, _ := data["deadline"].(*big.Int)
		if receiver == nil || project == nil || refund == nil || deadline == nil {
			return nil, indexererr.Validation("LOG_MALFORMED", "%s log is missing data fields", name)
		}
		args = DeadlineCreatedArgs{
			ReceiverAccountID: receiver.String(),
			ProjectAccountID:  project.String(),
			RefundAccountID:   refund.String(),
			ClaimDeadline:     deadline.Int64(),
		}
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, indexererr.Invariant("ARGS_MARSHAL", "failed to marshal %s args: %v", name, err)
	}
	ev.Args = encoded
	return ev, nil
}

func topicBig(topic common.Hash) *big.Int {
	return new(big.Int).SetBytes(topic.Bytes())
}

// trimmedBytes32 renders a bytes32 key as its ASCII prefix, dropping the
// zero padding.
func trimmedBytes32(topic common.Hash) string {
	return string(bytes.TrimRight(topic.Bytes(), "\x00"))
}
