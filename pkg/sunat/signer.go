// Interfaz para firma digital de comprobantes XML (XMLDSig enveloped, SUNAT).

package sunat

import "crypto/tls"

// Signer firma el XML de un comprobante y devuelve el XML con la firma
// inyectada en ext:ExtensionContent.
type Signer interface {
	// Sign toma el XML del comprobante (sin firma) y el certificado con llave
	// privada, y retorna el XML firmado más el DigestValue (Base64) de la
	// Reference, que es el hash impreso en la representación del comprobante.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, string, error)
}
