package main

import (
	"context"
	"math/big"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

type executeResult struct {
	ID              string      `json:"id"`
	TransactionHash common.Hash `json:"transactionHash"`
}

func main() {
	ctx := context.Background()

	txEngineURL := "http://localhost:8545"
	chainID := uint64(1337)
	// address of one of the keys loaded by the tx engine signer
	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	log.Infof("connecting to %s", txEngineURL)
	client, err := rpc.DialContext(ctx, txEngineURL)
	chkErr(err)
	defer client.Close()
	log.Infof("connected")

	const receiverAddr = "0x617b3a3528F9cDd6630fd3301B9c8911F7Bf063D"
	to := common.HexToAddress(receiverAddr)
	transferAmount := big.NewInt(1)

	for i := 0; i < 1; i++ {
		args := map[string]interface{}{
			"chainId": chainID,
			"from":    from,
			"to":      to,
			"value":   (*hexutil.Big)(transferAmount),
		}

		var result executeResult
		err := client.CallContext(ctx, &result, "txengine_executeTransaction", args)
		chkErr(err)

		log.Infof("tx executed: %s, hash: %s", result.ID, result.TransactionHash.Hex())
	}

	waitForFinalization(ctx, client, from)
}

// waitForFinalization polls the account history until no tx is pending
func waitForFinalization(ctx context.Context, client *rpc.Client, from common.Address) {
	const (
		attempts = 60
		interval = 2 * time.Second
	)
	for i := 0; i < attempts; i++ {
		var txs []*types.TransactionRecord
		err := client.CallContext(ctx, &txs, "txengine_getTransactionsByAddress", from)
		chkErr(err)

		pending := 0
		for _, tx := range txs {
			if tx.Status == types.StatusPending {
				pending++
				continue
			}
			log.Infof("tx %s is %s", tx.Tag(), tx.Status)
		}
		if pending == 0 {
			return
		}
		log.Infof("%d txs pending", pending)
		time.Sleep(interval)
	}
	log.Warnf("txs still pending after %d checks", attempts)
}

func chkErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
