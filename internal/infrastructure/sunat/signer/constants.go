// Constantes para firma XMLDSig enveloped de comprobantes UBL 2.1 (SUNAT).

package signer

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// SignatureID es el Id del nodo ds:Signature que referencia cac:Signature
// dentro del comprobante.
const SignatureID = "SignSUNAT"
