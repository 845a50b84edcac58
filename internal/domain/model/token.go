package model

// Token is one entry of the token catalog, keyed by RFID.
type Token struct {
	RFID        string `json:"SF_RFID"`
	ValueRating int    `json:"SF_ValueRating"`
	MemoryType  string `json:"SF_MemoryType"`
	Group       string `json:"SF_Group"`
}
