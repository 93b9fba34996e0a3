package server

import (
	"time"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/settlement"
)

type AssetResponse struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

type ChainResponse struct {
	ChainID       string          `json:"chain_id"`
	BridgeChainID uint16          `json:"bridge_chain_id"`
	Zaap          string          `json:"zaap"`
	Owner         string          `json:"owner"`
	WrappedNative string          `json:"wrapped_native"`
	PausedIn      bool            `json:"paused_in"`
	PausedOut     bool            `json:"paused_out"`
	Assets        []AssetResponse `json:"assets"`
}

type BalanceResponse struct {
	Symbol    string `json:"symbol"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	BaseUnits string `json:"base_units"`
}

type BalancesResponse struct {
	ChainID  string            `json:"chain_id"`
	Holder   string            `json:"holder"`
	Balances []BalanceResponse `json:"balances"`
}

type PartnerResponse struct {
	PartnerKey   string `json:"partner_key"`
	Address      string `json:"address"`
	PercentShare uint8  `json:"percent_share"`
}

type FeesResponse struct {
	ChainID   string            `json:"chain_id"`
	Direction string            `json:"direction"`
	FeeBps    uint16            `json:"fee_bps"`
	Treasury  string            `json:"treasury,omitempty"`
	Partners  []PartnerResponse `json:"partners"`
}

type PartnerRequest struct {
	PartnerID    string `json:"partner_id"`
	Address      string `json:"address"`
	PercentShare uint8  `json:"percent_share"`
}

// FeesRequest updates a fee configuration. Unset fields are left as they are.
type FeesRequest struct {
	FeeBps         *uint16          `json:"fee_bps,omitempty"`
	Treasury       string           `json:"treasury,omitempty"`
	ClearTreasury  bool             `json:"clear_treasury,omitempty"`
	SetPartners    []PartnerRequest `json:"set_partners,omitempty"`
	DeletePartners []string         `json:"delete_partners,omitempty"`
}

type CachedResponse struct {
	SourceChainID      uint16 `json:"source_chain_id"`
	DestinationChainID uint16 `json:"destination_chain_id"`
	Nonce              uint64 `json:"nonce"`
	Receiver           string `json:"receiver"`
	Asset              string `json:"asset"`
	Amount             string `json:"amount"`
	Reason             string `json:"reason"`
}

type RetryRequest struct {
	SourceChainID      uint16 `json:"source_chain_id"`
	DestinationChainID uint16 `json:"destination_chain_id"`
	Nonce              uint64 `json:"nonce"`
}

type RelayerResponse struct {
	InQueue   int `json:"in_queue"`
	Relaying  int `json:"relaying"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type EnterRequest = settlement.EnterParams

type EnterResponse struct {
	SettlementID      string `json:"settlement_id"`
	Nonce             uint64 `json:"nonce"`
	BridgeAmountGross string `json:"bridge_amount_gross"`
	BridgeAmountNet   string `json:"bridge_amount_net"`

	Outcome         string `json:"outcome,omitempty"`
	DeliveredAsset  string `json:"delivered_asset,omitempty"`
	DeliveredAmount string `json:"delivered_amount,omitempty"`
	Remainder       string `json:"remainder,omitempty"`

	Cached       bool   `json:"cached"`
	CachedReason string `json:"cached_reason,omitempty"`

	Duration time.Duration `json:"duration"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
