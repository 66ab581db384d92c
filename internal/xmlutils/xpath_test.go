package xmlutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statement = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
  <BkToCstmrStmt>
    <Stmt>
      <Ntry>
        <Amt Ccy="CHF">52.80</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <BookgDt><Dt>2025-11-14</Dt></BookgDt>
        <AcctSvcrRef>REF-1</AcctSvcrRef>
        <NtryDtls><TxDtls><RmtInf>
          <Ustrd>Coop   Pronto</Ustrd>
          <Ustrd>Lausanne</Ustrd>
        </RmtInf></TxDtls></NtryDtls>
      </Ntry>
      <Ntry>
        <Amt Ccy="CHF">1200.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <BookgDt><Dt>2025-11-25</Dt></BookgDt>
        <NtryRef>NREF-2</NtryRef>
        <AddtlNtryInf>Details: Salary November</AddtlNtryInf>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>`

func TestEntries(t *testing.T) {
	root, err := Parse(strings.NewReader(statement))
	require.NoError(t, err)

	entries := Nodes(root, XPathEntry)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "52.80", Value(first, XPathAmount))
	assert.Equal(t, "CHF", Value(first, XPathCurrency))
	assert.Equal(t, "DBIT", Value(first, XPathCreditDebitInd))
	assert.Equal(t, "2025-11-14", Value(first, XPathBookingDate))
	assert.Equal(t, []string{"Coop Pronto", "Lausanne"}, Values(first, XPathRemittanceInfo))
	assert.Equal(t, "", Value(first, XPathAddEntryInfo))

	second := entries[1]
	assert.Equal(t, "NREF-2", FirstOf(second, XPathAccountSvcRef, XPathEntryRef))
	assert.Equal(t, "Salary November", Value(second, XPathAddEntryInfo))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("<Document><Ntry>"))
	assert.Error(t, err)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"  Coop \n\t Pronto ", "Coop Pronto"},
		{"Remittance Info: Invoice 42", "Invoice 42"},
		{"Café de Flore, Paris", "Café de Flore, Paris"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.input))
	}
}
