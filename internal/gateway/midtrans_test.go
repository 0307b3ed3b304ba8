package gateway

import (
	"testing"

	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		transaction string
		fraud       string
		want        PaymentStatus
	}{
		{"settlement", "", StatusApproved},
		{"capture", "accept", StatusApproved},
		{"capture", "", StatusApproved},
		{"capture", "challenge", StatusDeclined},
		{"pending", "", StatusPending},
		{"authorize", "", StatusPending},
		{"deny", "", StatusDeclined},
		{"cancel", "", StatusDeclined},
		{"expire", "", StatusDeclined},
		{"SETTLEMENT", "", StatusApproved},
		{"refund", "", StatusUnknown},
		{"", "", StatusUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatus(tc.transaction, tc.fraud), "status %q fraud %q", tc.transaction, tc.fraud)
	}
}

func TestBuildChargeRequestBankTransfer(t *testing.T) {
	req, err := buildChargeRequest(ChargeRequest{
		OrderID:     "inv-1",
		Amount:      180000,
		Description: "Tuition 2024-03",
		PaymentType: "bank_transfer",
		Bank:        "bni",
	})
	require.NoError(t, err)
	assert.Equal(t, coreapi.PaymentTypeBankTransfer, req.PaymentType)
	assert.Equal(t, "inv-1", req.TransactionDetails.OrderID)
	assert.EqualValues(t, 180000, req.TransactionDetails.GrossAmt)
	require.NotNil(t, req.BankTransfer)
}

func TestBuildChargeRequestDefaultsToBankTransfer(t *testing.T) {
	req, err := buildChargeRequest(ChargeRequest{OrderID: "inv-2", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, coreapi.PaymentTypeBankTransfer, req.PaymentType)
}

func TestBuildChargeRequestCreditCardRequiresToken(t *testing.T) {
	_, err := buildChargeRequest(ChargeRequest{OrderID: "inv-3", Amount: 100, PaymentType: "credit_card"})
	require.Error(t, err)
}

func TestBuildChargeRequestUnsupportedType(t *testing.T) {
	_, err := buildChargeRequest(ChargeRequest{OrderID: "inv-4", Amount: 100, PaymentType: "cash"})
	require.Error(t, err)
}

func TestParseGross(t *testing.T) {
	assert.EqualValues(t, 180000, parseGross("180000.00"))
	assert.EqualValues(t, 0, parseGross(""))
	assert.EqualValues(t, 0, parseGross("abc"))
}
