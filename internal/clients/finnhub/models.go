package finnhub

// quoteResponse is the REST /quote payload. Only the current price is used;
// the remaining fields are kept for completeness of the wire format.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
}

// controlMessage is a subscribe/unsubscribe request sent over the stream
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// streamTrade is one trade inside a batched trade frame
type streamTrade struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Timestamp int64   `json:"t"` // milliseconds since epoch
}

// streamMessage is one inbound frame on the quote stream. Only frames with
// Type == "trade" carry ticks; everything else (pings, acks) is ignored.
// Finnhub batches trades under Data; the flat symbol/price fields cover
// providers that emit one trade per frame.
type streamMessage struct {
	Type      string        `json:"type"`
	Symbol    string        `json:"symbol"`
	Price     float64       `json:"price"`
	Timestamp int64         `json:"timestamp"` // milliseconds since epoch
	Data      []streamTrade `json:"data"`
}
