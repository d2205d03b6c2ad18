package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// User is the local account record. Mnemonic is the master secret; only
	// identity and trade keys derived from it are used after setup.
	User struct {
		ID             primitive.ObjectID `bson:"_id,omitempty"`
		Mnemonic       string             `bson:"mnemonic"`
		IdentityPubKey string             `bson:"identity_pubkey"`
		LastTradeIndex int64              `bson:"last_trade_index"`
		CreatedAt      int64              `bson:"created_at"`
	}

	// TradeRecord links an order to the trade index whose key negotiates it.
	TradeRecord struct {
		OrderID      string `bson:"order_id"`
		TradeIndex   int64  `bson:"trade_index"`
		TradePubKey  string `bson:"trade_pubkey"`
		Kind         string `bson:"kind,omitempty"`
		Role         Party  `bson:"role,omitempty"`
		IsAdminTrade bool   `bson:"is_admin,omitempty"`
		CreatedAt    int64  `bson:"created_at"`
	}
)
