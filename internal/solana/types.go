package solana

import "encoding/json"

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// uiTokenAmount is the amount shape shared by token RPC methods.
type uiTokenAmount struct {
	Address  string `json:"address,omitempty"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

type tokenLargestAccountsResult struct {
	Value []uiTokenAmount `json:"value"`
}

type tokenSupplyResult struct {
	Value *uiTokenAmount `json:"value"`
}

type multipleAccountsResult struct {
	Value []*parsedAccount `json:"value"`
}

type parsedAccount struct {
	Owner string `json:"owner"`
	Data  struct {
		Program string `json:"program"`
		Parsed  struct {
			Type string `json:"type"`
			Info struct {
				Mint  string `json:"mint"`
				Owner string `json:"owner"`
			} `json:"info"`
		} `json:"parsed"`
	} `json:"data"`
}
