// Servicio de firma digital XMLDSig enveloped para comprobantes UBL 2.1.
// Inyecta <ds:Signature> en el primer <ext:ExtensionContent> del XML.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// DigitalSignatureService firma el XML del comprobante. La firma es
// determinista: no lleva SigningTime ni ningún otro campo variable, de modo
// que firmar dos veces el mismo XML con el mismo certificado produce
// exactamente los mismos bytes y el mismo DigestValue.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign firma el XML e inyecta ds:Signature en el primer ExtensionContent.
// Devuelve el XML firmado y el DigestValue (Base64) de la Reference, que es
// el hash que SUNAT imprime en la representación del comprobante.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, string, error) {
	if len(xmlBytes) == 0 {
		return nil, "", fmt.Errorf("signer: XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("signer: el certificado debe incluir llave privada RSA")
	}
	if len(cert.Certificate) == 0 {
		return nil, "", fmt.Errorf("signer: certificado sin cadena X509")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, "", fmt.Errorf("signer: parsear certificado: %w", err)
	}

	// 1) Digest del documento sin firma (transform enveloped + C14N).
	// El builder deja el ExtensionContent vacío, así que el documento de
	// entrada ya es el documento "sin Signature".
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return nil, "", fmt.Errorf("signer: canonicalizar documento: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo (Reference URI="" al documento completo).
	signedInfoXML := buildSignedInfo(docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, "", fmt.Errorf("signer: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, "", fmt.Errorf("signer: firmar SignedInfo: %w", err)
	}

	// 3) Nodo completo con KeyInfo (X509Certificate).
	signatureXML := buildFullSignature(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
	)

	// 4) Inyectar en el primer ext:ExtensionContent.
	signed, err := injectSignature(xmlBytes, signatureXML)
	if err != nil {
		return nil, "", err
	}
	return signed, docDigestB64, nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildFullSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" Id="` + SignatureID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("signer: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("signer: documento sin raíz")
	}
	extContent := findFirstExtensionContent(root)
	if extContent == nil {
		return nil, fmt.Errorf("signer: no se encontró ext:ExtensionContent para inyectar la firma")
	}
	if len(extContent.ChildElements()) > 0 {
		return nil, fmt.Errorf("signer: el documento ya contiene una firma")
	}
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("signer: parsear Signature: %w", err)
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		extContent.AddChild(sigRoot)
	}
	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("signer: serializar XML firmado: %w", err)
	}
	return out.Bytes(), nil
}

// findFirstExtensionContent busca el primer ext:ExtensionContent bajo
// ext:UBLExtensions, tolerando prefijos de namespace distintos.
func findFirstExtensionContent(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if localName(child.Tag) != "UBLExtensions" {
			continue
		}
		for _, ext := range child.ChildElements() {
			if localName(ext.Tag) != "UBLExtension" {
				continue
			}
			for _, ec := range ext.ChildElements() {
				if localName(ec.Tag) == "ExtensionContent" {
					return ec
				}
			}
		}
	}
	return nil
}

func localName(tag string) string {
	if idx := strings.LastIndex(tag, ":"); idx != -1 {
		return tag[idx+1:]
	}
	return tag
}
