package xmlutils

// XPath expressions for CAMT.053 statements. XPathEntry selects the entries
// from the document root; the others are relative to one entry.
const (
	XPathEntry = "//Ntry"

	XPathAmount          = "Amt"
	XPathCurrency        = "Amt/@Ccy"
	XPathCreditDebitInd  = "CdtDbtInd" // #nosec G101 -- XPath expression, not credentials
	XPathBookingDate     = "BookgDt/Dt"
	XPathBookingDateTm   = "BookgDt/DtTm"
	XPathValueDate       = "ValDt/Dt"
	XPathStatus          = "Sts"
	XPathStatusCode      = "Sts/Cd"
	XPathAccountSvcRef   = "AcctSvcrRef"
	XPathEntryRef        = "NtryRef"
	XPathTxAccountSvcRef = "NtryDtls/TxDtls/Refs/AcctSvcrRef"
	XPathEndToEndID      = "NtryDtls/TxDtls/Refs/EndToEndId"

	XPathRemittanceInfo = "NtryDtls/TxDtls/RmtInf/Ustrd"
	XPathAddEntryInfo   = "AddtlNtryInf"
	XPathAddTxInfo      = "NtryDtls/TxDtls/AddtlTxInf"

	XPathDebtorName   = "NtryDtls/TxDtls/RltdPties/Dbtr/Nm" // #nosec G101 -- XPath expression, not credentials
	XPathCreditorName = "NtryDtls/TxDtls/RltdPties/Cdtr/Nm" // #nosec G101 -- XPath expression, not credentials
)
